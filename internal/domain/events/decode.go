package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	CodeBadRequest  = "bad_request"
	CodeUnsupported = "unsupported"
)

// DecodeError - входящее сообщение отклонено до попадания в бизнес-логику
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: CodeUnsupported, Message: message, Param: param}
}

func envelopeType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", badRequest("invalid json frame", "")
	}

	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badRequest("type is required", "type")
	}

	return typ, nil
}

func decodeInto(data []byte, typ string, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid "+typ+" message", "")
	}
	return nil
}
