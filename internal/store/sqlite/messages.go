package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

func (s *Store) InsertMessage(ctx context.Context, m core.NewMessage) (domain.Message, error) {
	author, err := s.CredentialsByID(ctx, m.AuthorID)
	if err != nil {
		return domain.Message{}, err
	}
	created := domain.NewTimestamp(s.now())

	var room, friend sql.NullInt64
	switch m.Kind {
	case domain.MessagePublic:
		room = sql.NullInt64{Int64: m.TargetID, Valid: true}
	case domain.MessagePrivate:
		friend = sql.NullInt64{Int64: m.TargetID, Valid: true}
	default:
		return domain.Message{}, fmt.Errorf("unknown message kind %q", m.Kind)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (roomid, friendid, author, content, filename, actualname, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`,
		room, friend, m.AuthorID, m.Content, m.FileName, m.ActualName, created.String())
	if err != nil {
		return domain.Message{}, mapError(err)
	}
	return domain.Message{
		Kind:       m.Kind,
		TargetID:   m.TargetID,
		AuthorID:   m.AuthorID,
		Username:   author.User.Username,
		Email:      author.User.Email,
		Content:    m.Content,
		ActualName: m.ActualName,
		FileName:   m.FileName,
		CreatedAt:  created,
	}, nil
}

func (s *Store) RecentMessages(ctx context.Context, user domain.UserID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'public', m.roomid, m.author, u.username, u.email, m.content, m.actualname, m.filename, m.created_at, m.messageid
		FROM messages m
		JOIN users u ON u.userid = m.author
		JOIN room_members rm ON rm.roomid = m.roomid AND rm.userid = ?
		UNION ALL
		SELECT 'private', m.friendid, m.author, u.username, u.email, m.content, m.actualname, m.filename, m.created_at, m.messageid
		FROM messages m
		JOIN users u ON u.userid = m.author
		JOIN friends f ON f.id = m.friendid AND (f.userid1 = ? OR f.userid2 = ?)
		ORDER BY 9 DESC, 10 DESC`, user, user, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var (
			m            domain.Message
			actual, file sql.NullString
			created      string
			messageID    int64
		)
		if err := rows.Scan(&m.Kind, &m.TargetID, &m.AuthorID, &m.Username, &m.Email, &m.Content,
			&actual, &file, &created, &messageID); err != nil {
			return nil, err
		}
		ts, err := domain.ParseTimestamp(created)
		if err != nil {
			return nil, err
		}
		m.ActualName, m.FileName, m.CreatedAt = actual.String, file.String, ts
		out = append(out, m)
	}
	return out, rows.Err()
}
