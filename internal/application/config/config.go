package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

const (
	SpeechBackendSimulated = "simulated"
	SpeechBackendGoogle    = "google"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required,notEmpty"`

	Room    RoomConfig
	Session SessionConfig
	Speech  SpeechConfig

	STUNServer    webrtc.ICEServer
	TurnUDPServer *webrtc.ICEServer
	TurnTCPServer *webrtc.ICEServer

	CoturnServer CoturnConfig
	Postgres     PostgresConfig
}

type RoomConfig struct {
	// Capacity - максимум участников в комнате, включая агента
	Capacity int `env:"ROOM_CAPACITY" envDefault:"3"`
}

type SessionConfig struct {
	// AgentTimeout - верхняя граница на reason + synthesize одного эпизода
	AgentTimeout     time.Duration `env:"AGENT_TIMEOUT" envDefault:"20s"`
	AudioQueueDepth  int           `env:"AUDIO_QUEUE_DEPTH" envDefault:"32"`
	MailboxSize      int           `env:"SESSION_MAILBOX_SIZE" envDefault:"64"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER" envDefault:"64"`
	PersistTimeout   time.Duration `env:"PERSIST_TIMEOUT" envDefault:"10s"`
}

type SpeechConfig struct {
	Backend string `env:"SPEECH_BACKEND" envDefault:"simulated"`

	ProjectID       string `env:"GOOGLE_PROJECT_ID"`
	CredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`
	Location        string `env:"SPEECH_LOCATION" envDefault:"global"`
	Model           string `env:"SPEECH_MODEL" envDefault:"long"`
	Language        string `env:"SPEECH_LANGUAGE" envDefault:"en-US"`

	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiTTSModel string `env:"GEMINI_TTS_MODEL" envDefault:"gemini-2.5-flash-preview-tts"`
	GeminiVoice    string `env:"GEMINI_VOICE" envDefault:"Kore"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"coachspeak"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// CoturnConfig опционален: без хоста отдаём только STUN
type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret - нужен для генерации временных кредов для фронта
	Secret string `env:"COTURN_SECRET"`
}

func (c *CoturnConfig) Enabled() bool {
	return c.Host != ""
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	c.STUNServer = webrtc.ICEServer{
		URLs: []string{"stun:stun.l.google.com:19302"},
	}

	if c.CoturnServer.Enabled() {
		c.TurnUDPServer = &webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = &webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Room.Capacity <= 0 {
		errs = append(errs, errors.New("ROOM_CAPACITY must be positive"))
	}
	if c.Session.AgentTimeout <= 0 {
		errs = append(errs, errors.New("AGENT_TIMEOUT must be positive"))
	}
	if c.Session.AudioQueueDepth <= 0 {
		errs = append(errs, errors.New("AUDIO_QUEUE_DEPTH must be positive"))
	}
	if c.Session.MailboxSize <= 0 {
		errs = append(errs, errors.New("SESSION_MAILBOX_SIZE must be positive"))
	}
	if c.Session.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("SUBSCRIBER_BUFFER must be positive"))
	}

	switch c.Speech.Backend {
	case SpeechBackendSimulated:
	case SpeechBackendGoogle:
		if c.Speech.ProjectID == "" {
			errs = append(errs, errors.New("GOOGLE_PROJECT_ID is required for google speech backend"))
		}
		if c.Speech.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for google speech backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SPEECH_BACKEND %q", c.Speech.Backend))
	}

	if c.CoturnServer.Enabled() && c.CoturnServer.Secret == "" {
		errs = append(errs, errors.New("COTURN_SECRET is required when COTURN_HOST is set"))
	}

	return errors.Join(errs...)
}

// ICEServers - список для серверного пира агента
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{c.STUNServer}

	if c.TurnUDPServer != nil {
		servers = append(servers, *c.TurnUDPServer)
	}
	if c.TurnTCPServer != nil {
		servers = append(servers, *c.TurnTCPServer)
	}

	return servers
}
