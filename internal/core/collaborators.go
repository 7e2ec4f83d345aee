package core

import (
	"context"

	"github.com/dkeye/roomcast/internal/domain"
)

// Credentials is a user row together with its stored password hash.
type Credentials struct {
	User         domain.User
	PasswordHash string
}

// NewMessage is the input to Store.InsertMessage.
type NewMessage struct {
	Kind       domain.MessageKind
	TargetID   int64
	AuthorID   domain.UserID
	Content    string
	ActualName string
	FileName   string
}

// Store is the persistence collaborator. Every call is synchronous.
// Lookups that find nothing return ErrNotFound; uniqueness violations return ErrConflict.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error)
	CredentialsByEmail(ctx context.Context, email string) (Credentials, error)
	CredentialsByID(ctx context.Context, id domain.UserID) (Credentials, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	SetPassword(ctx context.Context, id domain.UserID, passwordHash string) error
	UpdateProfile(ctx context.Context, id domain.UserID, username, phone, address string) error
	DeleteUser(ctx context.Context, id domain.UserID) error

	CreateRoom(ctx context.Context, owner domain.UserID, name string, members []domain.UserID) (domain.Room, error)
	Room(ctx context.Context, id domain.RoomID) (domain.Room, error)
	RoomsOf(ctx context.Context, user domain.UserID) ([]domain.Room, error)
	IsRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
	AddRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) error
	RemoveRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) error
	DeleteRoom(ctx context.Context, room domain.RoomID, owner domain.UserID) error
	// MembersOf lists, for every room the user belongs to, the other members.
	MembersOf(ctx context.Context, user domain.UserID) ([]domain.RoomMember, error)

	Friends(ctx context.Context, user domain.UserID) ([]domain.Friend, error)
	AddFriend(ctx context.Context, user, friend domain.UserID) (domain.FriendID, error)
	RemoveFriend(ctx context.Context, id domain.FriendID, user, friend domain.UserID) error
	// FriendOf returns the other side of a friendship the user belongs to.
	FriendOf(ctx context.Context, id domain.FriendID, user domain.UserID) (domain.UserID, error)

	InsertMessage(ctx context.Context, m NewMessage) (domain.Message, error)
	// RecentMessages returns room and private messages visible to the user, newest first.
	RecentMessages(ctx context.Context, user domain.UserID) ([]domain.Message, error)

	Close() error
}

// Authenticator is the authentication collaborator: salted hashing and a pass/fail check.
type Authenticator interface {
	Hash(raw string) (string, error)
	Verify(raw, encoded string) bool
}

// BlobStore is the attachment storage collaborator.
type BlobStore interface {
	// Put stores data under a generated name and returns it.
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}
