package domain

import "github.com/goccy/go-json"

type FriendID int64

// Friend is a friendship row seen from one side: [fid, userid, email, username].
type Friend struct {
	ID   FriendID
	User User
}

func (f Friend) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.ID, f.User.ID, f.User.Email, f.User.Username})
}

func (f *Friend) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &f.ID, &f.User.ID, &f.User.Email, &f.User.Username)
}
