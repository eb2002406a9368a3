package domain

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MediaPeer - WebRTC соединение серверного агента с одним участником комнаты
type MediaPeer struct {
	RoomID     string
	RemoteID   string
	RemoteRole Role
	Conn       *webrtc.PeerConnection
	// AudioTrack - исходящий голос агента
	AudioTrack *webrtc.TrackLocalStaticRTP
}

func NewMediaPeer(roomID string, remote Participant, iceServers []webrtc.ICEServer) (*MediaPeer, error) {
	pc, err := webrtc.NewPeerConnection(
		webrtc.Configuration{
			ICEServers: iceServers,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		AgentParticipantID(roomID),
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	if _, err = pc.AddTrack(audioTrack); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio track: %w", err)
	}

	return &MediaPeer{
		RoomID:     roomID,
		RemoteID:   remote.ID,
		RemoteRole: remote.Role,
		Conn:       pc,
		AudioTrack: audioTrack,
	}, nil
}
