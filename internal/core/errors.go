package core

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")

	// ErrQuit is returned by a dispatcher when the peer asked to end the session.
	ErrQuit = errors.New("quit")
)

// AppError is reported to the peer as an ERROR frame; the connection stays open.
type AppError struct {
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(msg string, err error) *AppError {
	return &AppError{Message: msg, Err: err}
}
