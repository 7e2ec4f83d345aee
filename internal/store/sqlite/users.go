package sqlite

import (
	"context"
	"database/sql"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

const credentialsQuery = `SELECT userid, email, username, phone, address, password FROM users `

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password) VALUES (?, ?, ?)`,
		username, email, passwordHash)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: domain.UserID(id), Email: email, Username: username}, nil
}

func scanCredentials(row *sql.Row) (core.Credentials, error) {
	var (
		c              core.Credentials
		phone, address sql.NullString
	)
	err := row.Scan(&c.User.ID, &c.User.Email, &c.User.Username, &phone, &address, &c.PasswordHash)
	if err != nil {
		return core.Credentials{}, mapError(err)
	}
	c.User.Phone = phone.String
	c.User.Address = address.String
	return c, nil
}

func (s *Store) CredentialsByEmail(ctx context.Context, email string) (core.Credentials, error) {
	return scanCredentials(s.db.QueryRowContext(ctx, credentialsQuery+`WHERE email = ?`, email))
}

func (s *Store) CredentialsByID(ctx context.Context, id domain.UserID) (core.Credentials, error) {
	return scanCredentials(s.db.QueryRowContext(ctx, credentialsQuery+`WHERE userid = ?`, id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	c, err := s.CredentialsByEmail(ctx, email)
	return c.User, err
}

func (s *Store) SetPassword(ctx context.Context, id domain.UserID, passwordHash string) error {
	return affected(s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE userid = ?`, passwordHash, id))
}

func (s *Store) UpdateProfile(ctx context.Context, id domain.UserID, username, phone, address string) error {
	return affected(s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, phone = NULLIF(?, ''), address = NULLIF(?, '') WHERE userid = ?`,
		username, phone, address, id))
}

func (s *Store) DeleteUser(ctx context.Context, id domain.UserID) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM users WHERE userid = ?`, id))
}
