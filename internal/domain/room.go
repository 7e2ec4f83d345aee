package domain

import (
	"unicode/utf8"

	"github.com/goccy/go-json"
)

type RoomID int64

type Room struct {
	ID      RoomID
	Name    string
	OwnerID UserID
}

func (r Room) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.ID, r.Name, r.OwnerID})
}

func (r *Room) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &r.ID, &r.Name, &r.OwnerID)
}

func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}

// RoomMember is one row of FETCH_MEMBERS: [roomid, userid, email, username].
type RoomMember struct {
	RoomID RoomID
	User   User
}

func (m RoomMember) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.RoomID, m.User.ID, m.User.Email, m.User.Username})
}

func (m *RoomMember) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &m.RoomID, &m.User.ID, &m.User.Email, &m.User.Username)
}
