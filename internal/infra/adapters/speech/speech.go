package speech

import "strings"

const (
	// FormatText - синтеза нет, клиент показывает текст
	FormatText = "text"
	// FormatPCM24k - сырой LINEAR16 моно 24 кГц от Gemini TTS
	FormatPCM24k = "audio/L16;rate=24000"
)

// endsSentence - распознаватель расставил финальную пунктуацию
func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	switch text[len(text)-1] {
	case '.', '?', '!':
		return true
	default:
		return false
	}
}
