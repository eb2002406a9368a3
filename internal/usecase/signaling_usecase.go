package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qrave1/CoachSpeak/internal/application/constant"
	"github.com/qrave1/CoachSpeak/internal/application/metric"
	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/domain/events"
	"github.com/qrave1/CoachSpeak/internal/infra/adapters/memory"
)

// MessageWriter доставляет сообщение в сигнальный сокет участника
type MessageWriter interface {
	Write(participantID string, payload any) error
}

// RoomSessions - то, что сигналингу нужно знать о сессии комнаты.
// Сессия комнаты имеет тот же id, что и комната.
type RoomSessions interface {
	Exists(sessionID string) bool
	Destroy(ctx context.Context, sessionID string) error
}

type SignalingUsecase interface {
	HandleJoin(ctx context.Context, roomID string, participant domain.Participant) error
	HandleNegotiation(ctx context.Context, fromID string, msg events.Negotiation) error
	HandleLeave(ctx context.Context, roomID, participantID string) error

	// AttachAgent добавляет в комнату серверного агента, если в ней есть люди
	AttachAgent(ctx context.Context, roomID string) error

	Participants(roomID string) []domain.Participant
	RoomOf(participantID string) (string, bool)

	// Run пересылает сигналы агента участникам, пока ctx не отменён
	Run(ctx context.Context)
}

type signalingUsecase struct {
	rooms    memory.RoomRegistry
	writer   MessageWriter
	sessions RoomSessions
	agent    AgentPeerUsecase

	// locks сериализует join и leave одной комнаты вместе с закрытием её сессии
	locks *roomLocks

	now func() time.Time
}

func NewSignalingUsecase(
	rooms memory.RoomRegistry,
	writer MessageWriter,
	sessions RoomSessions,
	agent AgentPeerUsecase,
) SignalingUsecase {
	return newSignalingUsecase(rooms, writer, sessions, agent, time.Now)
}

func newSignalingUsecase(
	rooms memory.RoomRegistry,
	writer MessageWriter,
	sessions RoomSessions,
	agent AgentPeerUsecase,
	now func() time.Time,
) *signalingUsecase {
	return &signalingUsecase{
		rooms:    rooms,
		writer:   writer,
		sessions: sessions,
		agent:    agent,
		locks:    newRoomLocks(),
		now:      now,
	}
}

func (s *signalingUsecase) HandleJoin(ctx context.Context, roomID string, participant domain.Participant) error {
	// участник может быть только в одной комнате
	if prev, ok := s.rooms.RoomOf(participant.ID); ok && prev != roomID {
		if err := s.HandleLeave(ctx, prev, participant.ID); err != nil {
			return fmt.Errorf("leave previous room: %w", err)
		}
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	peers, err := s.rooms.Join(roomID, participant)
	if err != nil {
		return err
	}

	s.write(participant.ID, events.NewPeerDiscovery(roomID, peers, s.now()))
	s.broadcast(peers, events.NewParticipantJoined(roomID, participant))

	slog.Info(
		"participant joined",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.ParticipantID, participant.ID),
		slog.String(constant.Role, string(participant.Role)),
	)

	if participant.Role.Human() && s.sessions.Exists(roomID) {
		if err = s.attachAgent(roomID); err != nil {
			slog.Warn("attach agent on join", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
		}
	}

	return nil
}

func (s *signalingUsecase) AttachAgent(ctx context.Context, roomID string) error {
	unlock := s.locks.lock(roomID)
	defer unlock()

	return s.attachAgent(roomID)
}

func (s *signalingUsecase) attachAgent(roomID string) error {
	agentID := domain.AgentParticipantID(roomID)
	if _, ok := s.rooms.Member(roomID, agentID); ok {
		return nil
	}

	// агент без людей удерживал бы пустую комнату
	if !hasHuman(s.rooms.Members(roomID)) {
		return nil
	}

	agent := domain.NewAgentParticipant(roomID, s.now())

	peers, err := s.rooms.Join(roomID, agent)
	if err != nil {
		return fmt.Errorf("join agent: %w", err)
	}

	s.broadcast(peers, events.NewParticipantJoined(roomID, agent))

	slog.Info("agent joined room", slog.String(constant.RoomID, roomID))

	return nil
}

func (s *signalingUsecase) HandleNegotiation(ctx context.Context, fromID string, msg events.Negotiation) error {
	from, ok := s.rooms.Member(msg.RoomID, fromID)
	if !ok {
		return domain.ErrUnknownSender
	}

	s.relay(ctx, from, msg)

	return nil
}

func (s *signalingUsecase) relay(ctx context.Context, from domain.Participant, msg events.Negotiation) {
	relayed := events.NewRelayed(msg.RoomID, from, msg, s.now())

	if msg.Broadcast() {
		others := make([]domain.Participant, 0, 2)
		for _, p := range s.rooms.Members(msg.RoomID) {
			if p.ID != from.ID {
				others = append(others, p)
			}
		}

		s.broadcast(others, relayed)
		return
	}

	to, ok := s.rooms.Member(msg.RoomID, msg.ToID)
	if !ok {
		metric.RecordRelayDropped("unknown_recipient")
		slog.Warn(
			"negotiation dropped",
			slog.Any(constant.Error, domain.ErrUnknownRecipient),
			slog.String(constant.RoomID, msg.RoomID),
			slog.String(constant.ParticipantID, from.ID),
			slog.String(constant.MessageType, msg.Type),
		)
		return
	}

	if to.ParticipantType == domain.ParticipantAI {
		if err := s.agent.HandleSignal(ctx, relayed); err != nil {
			metric.RecordRelayDropped("agent_rejected")
			slog.Error(
				"agent negotiation",
				slog.Any(constant.Error, err),
				slog.String(constant.RoomID, msg.RoomID),
				slog.String(constant.ParticipantID, from.ID),
			)
		}
		return
	}

	s.write(to.ID, relayed)
}

func (s *signalingUsecase) HandleLeave(ctx context.Context, roomID, participantID string) error {
	ok, err := s.leave(ctx, roomID, participantID)
	if !ok {
		return err
	}

	// пир уходящего закрывается вне блокировки комнаты
	s.agent.Disconnect(roomID, participantID)

	return err
}

// leave убирает участника и, если людей не осталось, закрывает комнату вместе
// с агентом и сессией. Новый join в эту комнату ждёт, пока закрытие не завершится.
func (s *signalingUsecase) leave(ctx context.Context, roomID, participantID string) (bool, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	res, ok := s.rooms.Leave(roomID, participantID)
	if !ok {
		return false, nil
	}

	s.broadcast(res.Remaining, events.NewParticipantLeft(roomID, participantID, s.now()))

	slog.Info(
		"participant left",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.ParticipantID, participantID),
	)

	if !res.Closed {
		return true, nil
	}

	for _, p := range res.Evicted {
		slog.Info(
			"participant evicted",
			slog.String(constant.RoomID, roomID),
			slog.String(constant.ParticipantID, p.ID),
		)
	}

	s.agent.CloseRoom(roomID)

	if !s.sessions.Exists(roomID) {
		return true, nil
	}

	err := s.sessions.Destroy(context.WithoutCancel(ctx), roomID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return true, fmt.Errorf("destroy room session: %w", err)
	}

	return true, nil
}

func (s *signalingUsecase) Participants(roomID string) []domain.Participant {
	return s.rooms.Members(roomID)
}

func (s *signalingUsecase) RoomOf(participantID string) (string, bool) {
	return s.rooms.RoomOf(participantID)
}

func (s *signalingUsecase) Run(ctx context.Context) {
	signals := s.agent.Signals()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-signals:
			from, ok := s.rooms.Member(msg.RoomID, domain.AgentParticipantID(msg.RoomID))
			if !ok {
				metric.RecordRelayDropped("agent_absent")
				continue
			}

			s.relay(ctx, from, msg)
		}
	}
}

// broadcast пишет в сокеты людей, у агента сокета нет
func (s *signalingUsecase) broadcast(to []domain.Participant, payload any) {
	for _, p := range to {
		if p.Role.Human() {
			s.write(p.ID, payload)
		}
	}
}

func (s *signalingUsecase) write(participantID string, payload any) {
	if err := s.writer.Write(participantID, payload); err != nil {
		metric.RecordRelayDropped("write_failed")
		slog.Warn(
			"write signaling message",
			slog.Any(constant.Error, err),
			slog.String(constant.ParticipantID, participantID),
		)
	}
}

func hasHuman(participants []domain.Participant) bool {
	for _, p := range participants {
		if p.Role.Human() {
			return true
		}
	}

	return false
}

type roomLock struct {
	sync.Mutex
	refs int
}

// roomLocks - mutex на каждую комнату, удаляется вместе с последним ожидающим
type roomLocks struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

func newRoomLocks() *roomLocks {
	return &roomLocks{rooms: make(map[string]*roomLock)}
}

func (l *roomLocks) lock(roomID string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()

	return func() {
		rl.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.rooms, roomID)
		}
		l.mu.Unlock()
	}
}
