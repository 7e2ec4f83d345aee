// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

const (
	MaxUsernameLen = 30
	MaxRoomNameLen = 30
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type UserID int64

// User is the identity bound to a session on LOGIN.
// Phone and Address are profile-only and never leave the server in the wire tuple.
type User struct {
	ID       UserID
	Email    string
	Username string
	Phone    string
	Address  string
}

// MarshalJSON encodes the user as the [id, email, username] tuple clients expect.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{u.ID, u.Email, u.Username})
}

func (u *User) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &u.ID, &u.Email, &u.Username)
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func (u *User) SetUsername(username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	u.Username = username
	return nil
}
