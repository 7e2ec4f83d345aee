package sqlite

import (
	"context"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

// Friendships are stored once with userid1 < userid2.

func (s *Store) Friends(ctx context.Context, user domain.UserID) ([]domain.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, u.userid, u.email, u.username
		FROM friends f JOIN users u
		  ON (f.userid2 = u.userid AND f.userid1 = ?)
		  OR (f.userid1 = u.userid AND f.userid2 = ?)
		ORDER BY f.id`, user, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Friend{}
	for rows.Next() {
		var f domain.Friend
		if err := rows.Scan(&f.ID, &f.User.ID, &f.User.Email, &f.User.Username); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) AddFriend(ctx context.Context, user, friend domain.UserID) (domain.FriendID, error) {
	if user == friend {
		return 0, core.ErrConflict
	}
	a, b := orderPair(user, friend)
	res, err := s.db.ExecContext(ctx, `INSERT INTO friends (userid1, userid2) VALUES (?, ?)`, a, b)
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	return domain.FriendID(id), err
}

func (s *Store) RemoveFriend(ctx context.Context, id domain.FriendID, user, friend domain.UserID) error {
	a, b := orderPair(user, friend)
	return affected(s.db.ExecContext(ctx,
		`DELETE FROM friends WHERE id = ? AND userid1 = ? AND userid2 = ?`, id, a, b))
}

func (s *Store) FriendOf(ctx context.Context, id domain.FriendID, user domain.UserID) (domain.UserID, error) {
	var other domain.UserID
	err := s.db.QueryRowContext(ctx, `
		SELECT CASE WHEN userid1 = ? THEN userid2 ELSE userid1 END
		FROM friends WHERE id = ? AND (userid1 = ? OR userid2 = ?)`,
		user, id, user, user).Scan(&other)
	return other, mapError(err)
}
