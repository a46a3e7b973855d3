// internal/lobby/code.go
package lobby

import "strings"

const (
	MinCodeLength = 3
	MaxCodeLength = 20
)

// CodeError is a room code validation failure. Its message is shown to the user as-is.
type CodeError struct {
	msg string
}

func (e *CodeError) Error() string { return e.msg }

var (
	ErrCodeRequired = &CodeError{msg: "Room ID is required"}
	ErrCodeLength   = &CodeError{msg: "Room ID must be between 3 and 20 characters"}
	ErrCodeChars    = &CodeError{msg: "Room ID can only contain letters and numbers"}
)

// NormalizeRoomCode validates a user-entered room code and returns its canonical
// lowercase form. Surrounding whitespace is ignored. Length is checked before
// the character set, so "ab" reports a length error and "room#1" a character error.
func NormalizeRoomCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", ErrCodeRequired
	}
	if n := len(code); n < MinCodeLength || n > MaxCodeLength {
		return "", ErrCodeLength
	}
	if !isASCIIAlnum(code) {
		return "", ErrCodeChars
	}
	return strings.ToLower(code), nil
}

func isASCIIAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
