package protocol

import "strconv"

// TokenType scopes a single-use authorization token. Values travel as JSON
// numbers; values outside the known set still decode and are reported as
// unrecognized by Known.
type TokenType int

const (
	TokenFileUpload TokenType = 0
	TokenFileDelete TokenType = 1
)

func (t TokenType) Known() bool {
	return t == TokenFileUpload || t == TokenFileDelete
}

func (t TokenType) String() string {
	switch t {
	case TokenFileUpload:
		return "FileUpload"
	case TokenFileDelete:
		return "FileDelete"
	default:
		return "TokenType(" + strconv.Itoa(int(t)) + ")"
	}
}
