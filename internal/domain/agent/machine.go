// Package agent содержит автомат состояния голосового агента.
//
// Transition - чистая функция (state, event) -> (next, effects): никаких сокетов,
// таймеров и горутин. Эффекты исполняет цикл сессии.
package agent

import (
	"strings"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

type State struct {
	Phase domain.AgentPhase
	// Episode - номер текущего или последнего эпизода think/speak
	Episode uint64
	// Pending - законченные реплики клиента, пришедшие во время эпизода
	Pending []string
}

func Initial() State {
	return State{Phase: domain.AgentListening}
}

// Busy - идёт эпизод, второй запрос к reasoning запрещён
func (s State) Busy() bool {
	return s.Phase == domain.AgentThinking || s.Phase == domain.AgentSpeaking
}

type Event interface {
	agentEvent()
}

// ClientTurnEnded - сервис распознавания сообщил о конце реплики клиента
type ClientTurnEnded struct {
	Text string
}

// CoachSpoke - реплика коуча, на автомат не влияет
type CoachSpoke struct{}

type ReplyReady struct {
	Episode uint64
	Reply   domain.Reply
}

type ReplyFailed struct {
	Episode uint64
	Err     error
}

type PlaybackFinished struct {
	Episode uint64
}

type PauseRequested struct{}

type ResumeRequested struct{}

func (ClientTurnEnded) agentEvent()  {}
func (CoachSpoke) agentEvent()       {}
func (ReplyReady) agentEvent()       {}
func (ReplyFailed) agentEvent()      {}
func (PlaybackFinished) agentEvent() {}
func (PauseRequested) agentEvent()   {}
func (ResumeRequested) agentEvent()  {}

type Effect interface {
	agentEffect()
}

type PhaseChanged struct {
	From domain.AgentPhase
	To   domain.AgentPhase
}

// RequestReply - отправить запрос во внешний reasoning сервис
type RequestReply struct {
	Episode uint64
	Prompt  string
}

// Speak - озвучить ответ и добавить реплику агента в транскрипт
type Speak struct {
	Episode uint64
	Reply   domain.Reply
}

type FinishSpeaking struct {
	Episode uint64
}

// ReportError - эпизод провалился, агент вернулся в listening
type ReportError struct {
	Episode uint64
	Err     error
}

// DiscardReply - ответ пришёл после паузы или от старого эпизода
type DiscardReply struct {
	Episode uint64
	Reason  string
}

func (PhaseChanged) agentEffect()   {}
func (RequestReply) agentEffect()   {}
func (Speak) agentEffect()          {}
func (FinishSpeaking) agentEffect() {}
func (ReportError) agentEffect()    {}
func (DiscardReply) agentEffect()   {}

const (
	DiscardPaused = "paused"
	DiscardStale  = "stale"
)

func Transition(s State, e Event) (State, []Effect) {
	next := s
	next.Pending = append([]string(nil), s.Pending...)

	switch ev := e.(type) {
	case ClientTurnEnded:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return next, nil
		}

		switch s.Phase {
		case domain.AgentListening:
			return startEpisode(next, text)
		case domain.AgentThinking, domain.AgentSpeaking:
			next.Pending = append(next.Pending, text)
			return next, nil
		default:
			// на паузе запросы к агенту подавляются
			return next, nil
		}

	case CoachSpoke:
		return next, nil

	case ReplyReady:
		if s.Phase == domain.AgentPaused {
			return next, []Effect{DiscardReply{Episode: ev.Episode, Reason: DiscardPaused}}
		}
		if s.Phase != domain.AgentThinking || ev.Episode != s.Episode {
			return next, []Effect{DiscardReply{Episode: ev.Episode, Reason: DiscardStale}}
		}

		next.Phase = domain.AgentSpeaking

		return next, []Effect{
			PhaseChanged{From: s.Phase, To: next.Phase},
			Speak{Episode: ev.Episode, Reply: ev.Reply},
		}

	case ReplyFailed:
		if !s.Busy() || ev.Episode != s.Episode {
			reason := DiscardStale
			if s.Phase == domain.AgentPaused {
				reason = DiscardPaused
			}
			return next, []Effect{DiscardReply{Episode: ev.Episode, Reason: reason}}
		}

		return toListening(next, []Effect{ReportError{Episode: ev.Episode, Err: ev.Err}})

	case PlaybackFinished:
		if s.Phase != domain.AgentSpeaking || ev.Episode != s.Episode {
			return next, nil
		}

		return toListening(next, []Effect{FinishSpeaking{Episode: ev.Episode}})

	case PauseRequested:
		if s.Phase == domain.AgentPaused {
			return next, nil
		}

		next.Phase = domain.AgentPaused
		next.Pending = nil

		return next, []Effect{PhaseChanged{From: s.Phase, To: next.Phase}}

	case ResumeRequested:
		if s.Phase != domain.AgentPaused {
			return next, nil
		}

		next.Phase = domain.AgentListening

		return next, []Effect{PhaseChanged{From: s.Phase, To: next.Phase}}
	}

	return next, nil
}

func startEpisode(s State, prompt string) (State, []Effect) {
	from := s.Phase

	s.Episode++
	s.Phase = domain.AgentThinking

	return s, []Effect{
		PhaseChanged{From: from, To: s.Phase},
		RequestReply{Episode: s.Episode, Prompt: prompt},
	}
}

// toListening завершает эпизод и сразу запускает следующий, если клиент успел
// договорить ещё что-то. Отложенные реплики склеиваются в один запрос.
func toListening(s State, effects []Effect) (State, []Effect) {
	from := s.Phase
	s.Phase = domain.AgentListening
	effects = append(effects, PhaseChanged{From: from, To: s.Phase})

	if len(s.Pending) == 0 {
		return s, effects
	}

	prompt := strings.Join(s.Pending, " ")
	s.Pending = nil

	s, more := startEpisode(s, prompt)

	return s, append(effects, more...)
}
