package sqlite

import (
	"context"
	"fmt"

	"github.com/dkeye/roomcast/internal/domain"
)

// CreateRoom inserts the room and its member rows in one transaction. The
// owner is always a member; unknown member ids are skipped.
func (s *Store) CreateRoom(ctx context.Context, owner domain.UserID, name string, members []domain.UserID) (domain.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Room{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO rooms (roomname, ownerid) VALUES (?, ?)`, name, owner)
	if err != nil {
		return domain.Room{}, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Room{}, err
	}

	seen := map[domain.UserID]struct{}{owner: {}}
	ids := []domain.UserID{owner}
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		ids = append(ids, m)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO room_members (userid, roomid) SELECT userid, ? FROM users WHERE userid = ?`)
	if err != nil {
		return domain.Room{}, err
	}
	defer stmt.Close()
	for _, uid := range ids {
		if _, err := stmt.ExecContext(ctx, id, uid); err != nil {
			return domain.Room{}, fmt.Errorf("add member %d: %w", uid, mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Room{}, err
	}
	return domain.Room{ID: domain.RoomID(id), Name: name, OwnerID: owner}, nil
}

func (s *Store) Room(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var r domain.Room
	err := s.db.QueryRowContext(ctx, `SELECT roomid, roomname, ownerid FROM rooms WHERE roomid = ?`, id).
		Scan(&r.ID, &r.Name, &r.OwnerID)
	return r, mapError(err)
}

func (s *Store) RoomsOf(ctx context.Context, user domain.UserID) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.roomid, r.roomname, r.ownerid
		FROM rooms r JOIN room_members rm ON rm.roomid = r.roomid
		WHERE rm.userid = ?
		ORDER BY r.roomid`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Room{}
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.OwnerID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) IsRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_members WHERE roomid = ? AND userid = ?`, room, user).Scan(&n)
	return n > 0, err
}

func (s *Store) AddRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO room_members (userid, roomid) VALUES (?, ?)`, user, room)
	return mapError(err)
}

func (s *Store) RemoveRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM room_members WHERE userid = ? AND roomid = ?`, user, room))
}

// DeleteRoom removes a room owned by owner; members and messages cascade.
func (s *Store) DeleteRoom(ctx context.Context, room domain.RoomID, owner domain.UserID) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM rooms WHERE roomid = ? AND ownerid = ?`, room, owner))
}

func (s *Store) MembersOf(ctx context.Context, user domain.UserID) ([]domain.RoomMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r2.roomid, u.userid, u.email, u.username
		FROM room_members r1
		JOIN room_members r2 ON r2.roomid = r1.roomid
		JOIN users u ON u.userid = r2.userid
		WHERE r1.userid = ? AND r2.userid != ?
		ORDER BY r2.roomid, u.userid`, user, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.RoomMember{}
	for rows.Next() {
		var m domain.RoomMember
		if err := rows.Scan(&m.RoomID, &m.User.ID, &m.User.Email, &m.User.Username); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
