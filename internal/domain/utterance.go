package domain

import "time"

type Utterance struct {
	Index       int       `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	SpeakerRole Role      `json:"speakerRole"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
}
