package domain

import "time"

type AudioEncoding string

const (
	EncodingLinear16 AudioEncoding = "linear16"
	EncodingOggOpus  AudioEncoding = "ogg_opus"
	// EncodingText - чанк уже содержит текст (симулятор, тесты)
	EncodingText AudioEncoding = "text"
)

type AudioChunk struct {
	SpeakerRole Role
	Data        []byte
	Encoding    AudioEncoding
	SampleRate  int
	// EndOfTurnHint - клиентский VAD считает реплику законченной
	EndOfTurnHint bool
	ReceivedAt    time.Time
}

// Transcription - результат распознавания одного чанка
type Transcription struct {
	Text       string
	Confidence float64
	EndOfTurn  bool
}

// Speech - синтезированная речь агента
type Speech struct {
	Audio    []byte
	Format   string
	Duration time.Duration
}

// Reply - ответ агента для одного эпизода
type Reply struct {
	Text   string
	Speech Speech
}
