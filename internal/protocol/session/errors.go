package session

import "errors"

var (
	ErrTransport             = errors.New("session: transport")
	ErrHandshakeStageTimeout = errors.New("session: handshake stage timeout")
	ErrConnClosed            = errors.New("session: connection closed")
	ErrAttemptsExhausted     = errors.New("session: connect attempts exhausted")
)
