package client

import (
	"fmt"
	"slices"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

// Sender is the outbound half of a connection.
type Sender interface {
	Send(header string, body any) error
}

type Room struct {
	domain.Room
	Members  []domain.User
	Messages []domain.Message
}

type Friend struct {
	domain.Friend
	Messages []domain.Message
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// State is the client's view of its account, rooms and friends, kept current
// by bus listeners. Accessors return copies.
type State struct {
	out Sender

	mu      sync.RWMutex
	user    *domain.User
	pending *credentials
	creds   *credentials
	rooms   *Cache[domain.RoomID, Room]
	friends *Cache[domain.FriendID, Friend]

	subs []*Subscription
}

func NewState(out Sender) *State {
	return &State{
		out:     out,
		rooms:   NewCache[domain.RoomID, Room](),
		friends: NewCache[domain.FriendID, Friend](),
	}
}

// Attach subscribes the state to every frame it tracks.
func (s *State) Attach(bus *Bus) {
	on := func(header string, fn Handler) {
		s.subs = append(s.subs, bus.Subscribe(header, fn))
	}
	on(protocol.Reconnect, s.onReconnect)
	on(protocol.Login, s.onLogin)
	on(protocol.Logout, s.onLogout)
	on(protocol.FetchRooms, decoded(s.onRooms))
	on(protocol.JoinRoom, decoded(s.onJoinRoom))
	on(protocol.LeaveRoom, decoded(s.onLeaveRoom))
	on(protocol.Message, decoded(s.onMessage))
	on(protocol.RecentChats, decoded(s.onRecentChats))
	on(protocol.FetchMembers, decoded(s.onMembers))
	on(protocol.MemberJoin, s.onMemberJoin)
	on(protocol.MemberLeave, s.onMemberLeave)
	on(protocol.FetchFriends, decoded(s.onFriends))
	on(protocol.AddFriend, decoded(s.onAddFriend))
	on(protocol.RemoveFriend, decoded(s.onRemoveFriend))
}

func (s *State) Detach() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

// decoded adapts a typed listener; bodies that do not decode are logged and skipped.
func decoded[T any](fn func(T)) Handler {
	return func(f protocol.Frame) {
		var v T
		if err := f.Decode(&v); err != nil {
			log.Warn().Err(err).Str("module", "client.state").Str("header", f.Header).Msg("bad body")
			return
		}
		fn(v)
	}
}

// Login remembers the credentials and asks the server to log in. They are
// kept for reconnects once the server accepts them.
func (s *State) Login(email, password string) error {
	c := &credentials{Email: email, Password: password}
	s.mu.Lock()
	s.pending = c
	s.mu.Unlock()
	return s.out.Send(protocol.Login, c)
}

func (s *State) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *State) Room(id domain.RoomID) (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms.Get(id)
	if !ok {
		return Room{}, false
	}
	return cloneRoom(r), true
}

func (s *State) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, 0, s.rooms.Len())
	for _, id := range s.rooms.Keys() {
		r, _ := s.rooms.Get(id)
		out = append(out, cloneRoom(r))
	}
	return out
}

func (s *State) Friend(id domain.FriendID) (Friend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.friends.Get(id)
	if !ok {
		return Friend{}, false
	}
	return Friend{Friend: f.Friend, Messages: slices.Clone(f.Messages)}, true
}

func (s *State) Friends() []Friend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Friend, 0, s.friends.Len())
	for _, id := range s.friends.Keys() {
		f, _ := s.friends.Get(id)
		out = append(out, Friend{Friend: f.Friend, Messages: slices.Clone(f.Messages)})
	}
	return out
}

func cloneRoom(r *Room) Room {
	return Room{Room: r.Room, Members: slices.Clone(r.Members), Messages: slices.Clone(r.Messages)}
}

func (s *State) room(id domain.RoomID) *Room {
	return s.rooms.GetOrCreate(id, func() Room { return Room{Room: domain.Room{ID: id}} })
}

func (s *State) friend(id domain.FriendID) *Friend {
	return s.friends.GetOrCreate(id, func() Friend { return Friend{Friend: domain.Friend{ID: id}} })
}

func (s *State) onReconnect(protocol.Frame) {
	s.mu.RLock()
	c := s.creds
	s.mu.RUnlock()
	if c == nil {
		return
	}
	if err := s.out.Send(protocol.Login, c); err != nil {
		log.Warn().Err(err).Str("module", "client.state").Msg("re-login")
	}
}

func (s *State) onLogin(f protocol.Frame) {
	var reply struct {
		Error   bool         `json:"error"`
		Message string       `json:"message"`
		User    *domain.User `json:"user"`
	}
	if err := f.Decode(&reply); err != nil {
		log.Warn().Err(err).Str("module", "client.state").Msg("bad login reply")
		return
	}
	s.mu.Lock()
	if reply.Error || reply.User == nil {
		s.pending = nil
		s.mu.Unlock()
		log.Warn().Str("module", "client.state").Msg(reply.Message)
		return
	}
	s.user = reply.User
	if s.pending != nil {
		s.creds, s.pending = s.pending, nil
	}
	s.mu.Unlock()

	for _, h := range []string{protocol.FetchRooms, protocol.FetchMembers, protocol.FetchFriends, protocol.FetchRecentChats} {
		if err := s.out.Send(h, struct{}{}); err != nil {
			log.Warn().Err(err).Str("module", "client.state").Str("header", h).Msg("initial fetch")
		}
	}
}

func (s *State) onLogout(protocol.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.creds, s.pending = nil, nil, nil
	s.rooms.Clear()
	s.friends.Clear()
}

func (s *State) onRooms(rooms []domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rooms {
		s.room(r.ID).Room = r
	}
}

func (s *State) onJoinRoom(r domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room(r.ID).Room = r
}

func (s *State) onLeaveRoom(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms.Delete(id)
}

func (s *State) onMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendMessage(m)
}

func (s *State) appendMessage(m domain.Message) {
	switch m.Kind {
	case domain.MessagePublic:
		r := s.room(domain.RoomID(m.TargetID))
		r.Messages = append(r.Messages, m)
	case domain.MessagePrivate:
		f := s.friend(domain.FriendID(m.TargetID))
		f.Messages = append(f.Messages, m)
	}
}

// onRecentChats replaces message history. The server sends newest first.
func (s *State) onRecentChats(msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.rooms.Keys() {
		r, _ := s.rooms.Get(id)
		r.Messages = nil
	}
	for _, id := range s.friends.Keys() {
		f, _ := s.friends.Get(id)
		f.Messages = nil
	}
	for _, m := range slices.Backward(msgs) {
		s.appendMessage(m)
	}
}

func (s *State) onMembers(members []domain.RoomMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.rooms.Keys() {
		r, _ := s.rooms.Get(id)
		r.Members = nil
	}
	for _, m := range members {
		r := s.room(m.RoomID)
		r.Members = append(r.Members, m.User)
	}
}

func (s *State) onMemberJoin(f protocol.Frame) {
	var room domain.RoomID
	var user domain.User
	if err := decodePair(f, &room, &user); err != nil {
		log.Warn().Err(err).Str("module", "client.state").Msg("bad MEMBER_JOIN")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room(room)
	if !slices.ContainsFunc(r.Members, func(u domain.User) bool { return u.ID == user.ID }) {
		r.Members = append(r.Members, user)
	}
}

func (s *State) onMemberLeave(f protocol.Frame) {
	var room domain.RoomID
	var uid domain.UserID
	if err := decodePair(f, &room, &uid); err != nil {
		log.Warn().Err(err).Str("module", "client.state").Msg("bad MEMBER_LEAVE")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms.Get(room); ok {
		r.Members = slices.DeleteFunc(r.Members, func(u domain.User) bool { return u.ID == uid })
	}
}

func (s *State) onFriends(friends []domain.Friend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range friends {
		s.friend(f.ID).Friend = f
	}
}

func (s *State) onAddFriend(f domain.Friend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friend(f.ID).Friend = f
}

func (s *State) onRemoveFriend(id domain.FriendID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends.Delete(id)
}

func decodePair(f protocol.Frame, a, b any) error {
	var pair []json.RawMessage
	if err := f.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], a); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], b)
}
