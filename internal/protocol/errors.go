package protocol

import (
	"errors"
	"fmt"
)

// ErrUndecodable is wrapped by every DecodeError.
var ErrUndecodable = errors.New("undecodable frame")

const (
	// Frame-level failures.
	ErrCodeNotJSON   = "E_NOT_JSON"
	ErrCodeNotObject = "E_NOT_OBJECT"

	// Variant matching.
	ErrCodeUnknownKind = "E_UNKNOWN_KIND"
	ErrCodeBadShape    = "E_BAD_SHAPE"
	ErrCodeNoVariant   = "E_NO_VARIANT"
)

var knownCodes = map[string]struct{}{
	ErrCodeNotJSON:     {},
	ErrCodeNotObject:   {},
	ErrCodeUnknownKind: {},
	ErrCodeBadShape:    {},
	ErrCodeNoVariant:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// DecodeError reports why a frame was dropped.
type DecodeError struct {
	Code   string
	Kind   Kind
	Detail string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrUndecodable.Error(), e.Code)
	if e.Kind != "" {
		msg += " kind=" + string(e.Kind)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return ErrUndecodable }

// DecodeErrorCode extracts the code of a DecodeError, or "".
func DecodeErrorCode(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
