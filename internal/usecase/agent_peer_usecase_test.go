package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/memory"
)

type nopSink struct{}

func (nopSink) SubmitAudio(context.Context, string, domain.AudioChunk) error { return nil }

func TestOggChunk(t *testing.T) {
	packets := make([]*rtp.Packet, 0, 3)
	for i := 0; i < 3; i++ {
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i * 960),
				SSRC:           42,
			},
			Payload: []byte{0xfc, 0xff, 0xfe},
		})
	}

	data, err := oggChunk(packets)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("OggS")))
	assert.True(t, bytes.Contains(data, []byte("OpusHead")))
}

func TestAgentPeerRejectsSignalsWithoutPeer(t *testing.T) {
	uc := NewAgentPeerUsecase(nil, memory.NewPeerConnectionRepository(), nopSink{})
	ctx := context.Background()

	err := uc.HandleSignal(ctx, events.Relayed{Type: events.TypeAnswer, RoomID: "r1", FromID: "coach", Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)

	err = uc.HandleSignal(ctx, events.Relayed{Type: events.TypeICECandidate, RoomID: "r1", FromID: "coach", Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)

	err = uc.HandleSignal(ctx, events.Relayed{Type: events.TypeOffer, RoomID: "r1", FromID: "coach", Payload: json.RawMessage(`not json`)})
	assert.Error(t, err)

	err = uc.HandleSignal(ctx, events.Relayed{Type: "participant-left", RoomID: "r1", FromID: "coach"})
	assert.Error(t, err)
}

func TestAgentPeerAnswersOffer(t *testing.T) {
	repo := memory.NewPeerConnectionRepository()
	uc := NewAgentPeerUsecase(nil, repo, nopSink{})

	remote, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer remote.Close()

	_, err = remote.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	offer, err := remote.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, remote.SetLocalDescription(offer))

	payload, err := json.Marshal(offer)
	require.NoError(t, err)

	err = uc.HandleSignal(context.Background(), events.Relayed{
		Type:            events.TypeOffer,
		RoomID:          "r1",
		FromID:          "coach",
		FromRole:        domain.RoleCoach,
		ParticipantType: domain.ParticipantHuman,
		Payload:         payload,
	})
	require.NoError(t, err)

	peer, ok := repo.Get("r1", "coach")
	require.True(t, ok)
	assert.Equal(t, domain.RoleCoach, peer.RemoteRole)

	var answer events.Negotiation
	timeout := time.After(3 * time.Second)
	for answer.Type != events.TypeAnswer {
		select {
		case answer = <-uc.Signals():
			assert.Equal(t, "coach", answer.ToID)
			assert.Equal(t, "r1", answer.RoomID)
		case <-timeout:
			t.Fatal("no answer from agent peer")
		}
	}

	var sdp webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(answer.Payload, &sdp))
	assert.Equal(t, webrtc.SDPTypeAnswer, sdp.Type)
	require.NoError(t, remote.SetRemoteDescription(sdp))

	uc.Disconnect("r1", "coach")
	_, ok = repo.Get("r1", "coach")
	assert.False(t, ok)
}

func TestAgentPeerCloseRoom(t *testing.T) {
	repo := memory.NewPeerConnectionRepository()
	uc := NewAgentPeerUsecase(nil, repo, nopSink{})

	for _, id := range []string{"coach", "client"} {
		peer, err := domain.NewMediaPeer("r1", domain.Participant{ID: id, Role: domain.RoleClient}, nil)
		require.NoError(t, err)
		repo.Add(peer)
	}

	uc.CloseRoom("r1")

	_, ok := repo.Get("r1", "coach")
	assert.False(t, ok)
	_, ok = repo.Get("r1", "client")
	assert.False(t, ok)
}
