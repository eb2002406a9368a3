package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/memory"
)

const (
	opusSampleRate   = 48000
	opusChannelCount = 2
	// 100 пакетов по 20 мс - около двух секунд речи на чанк
	packetsPerChunk = 100
	agentSignalsBuf = 64
)

// AudioSink принимает аудио участников для их сессии
type AudioSink interface {
	SubmitAudio(ctx context.Context, sessionID string, chunk domain.AudioChunk) error
}

// AgentPeerUsecase - медиа-сторона серверного агента.
// Отвечает на offer, адресованные агенту, и превращает входящие дорожки в аудио чанки.
type AgentPeerUsecase interface {
	HandleSignal(ctx context.Context, msg events.Relayed) error
	Disconnect(roomID, remoteID string)
	CloseRoom(roomID string)

	// Signals - исходящие сообщения агента (answer, ice-candidate) для relay
	Signals() <-chan events.Negotiation
}

type agentPeerUsecase struct {
	iceServers []webrtc.ICEServer

	pcRepo memory.PeerConnectionRepository
	sink   AudioSink

	signals chan events.Negotiation
}

func NewAgentPeerUsecase(iceServers []webrtc.ICEServer, pcRepo memory.PeerConnectionRepository, sink AudioSink) AgentPeerUsecase {
	return &agentPeerUsecase{
		iceServers: iceServers,
		pcRepo:     pcRepo,
		sink:       sink,
		signals:    make(chan events.Negotiation, agentSignalsBuf),
	}
}

func (p *agentPeerUsecase) Signals() <-chan events.Negotiation {
	return p.signals
}

func (p *agentPeerUsecase) HandleSignal(ctx context.Context, msg events.Relayed) error {
	switch msg.Type {
	case events.TypeOffer:
		return p.handleOffer(ctx, msg)

	case events.TypeAnswer:
		peer, ok := p.pcRepo.Get(msg.RoomID, msg.FromID)
		if !ok {
			return fmt.Errorf("answer from %s: no agent peer", msg.FromID)
		}

		var answer webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &answer); err != nil {
			return fmt.Errorf("unmarshal answer: %w", err)
		}

		if err := peer.Conn.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}

	case events.TypeICECandidate:
		peer, ok := p.pcRepo.Get(msg.RoomID, msg.FromID)
		if !ok {
			return fmt.Errorf("ice candidate from %s: no agent peer", msg.FromID)
		}

		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			return fmt.Errorf("unmarshal ice candidate: %w", err)
		}

		if err := peer.Conn.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}

	default:
		return fmt.Errorf("agent peer: unexpected signal %q", msg.Type)
	}

	return nil
}

func (p *agentPeerUsecase) handleOffer(ctx context.Context, msg events.Relayed) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &offer); err != nil {
		return fmt.Errorf("unmarshal offer: %w", err)
	}

	// повторный offer от того же участника - новая сессия WebRTC
	p.Disconnect(msg.RoomID, msg.FromID)

	remote := domain.Participant{ID: msg.FromID, Role: msg.FromRole, ParticipantType: msg.ParticipantType}

	peer, err := domain.NewMediaPeer(msg.RoomID, remote, p.iceServers)
	if err != nil {
		return fmt.Errorf("create agent peer: %w", err)
	}

	p.bind(peer)

	if err = peer.Conn.SetRemoteDescription(offer); err != nil {
		p.Disconnect(msg.RoomID, msg.FromID)
		return fmt.Errorf("set remote description: %w", err)
	}

	answer, err := peer.Conn.CreateAnswer(nil)
	if err != nil {
		p.Disconnect(msg.RoomID, msg.FromID)
		return fmt.Errorf("create answer: %w", err)
	}

	if err = peer.Conn.SetLocalDescription(answer); err != nil {
		p.Disconnect(msg.RoomID, msg.FromID)
		return fmt.Errorf("set local description: %w", err)
	}

	p.emit(events.TypeAnswer, peer, peer.Conn.LocalDescription())

	slog.Info(
		"agent answered offer",
		slog.String(constant.RoomID, msg.RoomID),
		slog.String(constant.ParticipantID, msg.FromID),
		slog.String(constant.Role, string(msg.FromRole)),
	)

	return nil
}

func (p *agentPeerUsecase) bind(peer *domain.MediaPeer) {
	p.pcRepo.Add(peer)

	peer.Conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		p.emit(events.TypeICECandidate, peer, c.ToJSON())
	})

	peer.Conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if current, ok := p.pcRepo.Get(peer.RoomID, peer.RemoteID); ok && current == peer {
				p.Disconnect(peer.RoomID, peer.RemoteID)
			}
		}
	})

	peer.Conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}

		go p.readAudio(peer, track)
	})
}

// readAudio режет входящий Opus на чанки и отдаёт их в сессию комнаты
func (p *agentPeerUsecase) readAudio(peer *domain.MediaPeer, track *webrtc.TrackRemote) {
	packets := make([]*rtp.Packet, 0, packetsPerChunk)

	for {
		pkt, _, err := track.ReadRTP()
		if err == nil {
			packets = append(packets, pkt)
			if len(packets) < packetsPerChunk {
				continue
			}
		}

		if len(packets) > 0 {
			p.submit(peer, packets)
			packets = packets[:0]
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("RTP read error", slog.Any(constant.Error, err), slog.String(constant.RoomID, peer.RoomID))
			}
			return
		}
	}
}

func (p *agentPeerUsecase) submit(peer *domain.MediaPeer, packets []*rtp.Packet) {
	data, err := oggChunk(packets)
	if err != nil {
		slog.Error("pack opus chunk", slog.Any(constant.Error, err), slog.String(constant.RoomID, peer.RoomID))
		return
	}

	chunk := domain.AudioChunk{
		SpeakerRole: peer.RemoteRole,
		Data:        data,
		Encoding:    domain.EncodingOggOpus,
		SampleRate:  opusSampleRate,
		ReceivedAt:  time.Now(),
	}

	err = p.sink.SubmitAudio(context.Background(), peer.RoomID, chunk)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		slog.Error(
			"submit agent peer audio",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, peer.RoomID),
			slog.String(constant.ParticipantID, peer.RemoteID),
		)
	}
}

// oggChunk упаковывает RTP пакеты Opus в самостоятельный Ogg контейнер
func oggChunk(packets []*rtp.Packet) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := oggwriter.NewWith(&buf, opusSampleRate, opusChannelCount)
	if err != nil {
		return nil, fmt.Errorf("create ogg writer: %w", err)
	}

	for _, pkt := range packets {
		if err = writer.WriteRTP(pkt); err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("write rtp: %w", err)
		}
	}

	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("close ogg writer: %w", err)
	}

	return buf.Bytes(), nil
}

func (p *agentPeerUsecase) emit(typ string, peer *domain.MediaPeer, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal agent signal", slog.Any(constant.Error, err))
		return
	}

	msg := events.Negotiation{
		Type:    typ,
		RoomID:  peer.RoomID,
		ToID:    peer.RemoteID,
		Payload: raw,
	}

	select {
	case p.signals <- msg:
	default:
		slog.Warn(
			"agent signal dropped, relay is not keeping up",
			slog.String(constant.RoomID, peer.RoomID),
			slog.String(constant.MessageType, typ),
		)
	}
}

func (p *agentPeerUsecase) Disconnect(roomID, remoteID string) {
	peer, ok := p.pcRepo.Remove(roomID, remoteID)
	if !ok {
		return
	}

	if err := peer.Conn.Close(); err != nil {
		slog.Error("close agent peer", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
	}
}

func (p *agentPeerUsecase) CloseRoom(roomID string) {
	for _, peer := range p.pcRepo.RemoveRoom(roomID) {
		if err := peer.Conn.Close(); err != nil {
			slog.Error("close agent peer", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
		}
	}
}
