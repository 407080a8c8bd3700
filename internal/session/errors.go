package session

import "errors"

var (
	ErrUnsupportedKind   = errors.New("unsupported database kind")
	ErrMissingCredential = errors.New("missing credential")
	ErrNoActiveSession   = errors.New("no active session, call initialize-connection first")
)
