package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"expense-tracker/internal/models"
)

const userColumns = "id, username, password_hash, created_at"

// CreateUser creates a new user with the given username and password hash.
// A duplicate username yields an apperr conflict error.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	var u models.User
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		var id int64
		err := conn.QueryRowContext(ctx, db.dialect.rebind(
			"INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id"),
			username, passwordHash,
		).Scan(&id)
		if err != nil {
			return classify(err)
		}
		row := conn.QueryRowContext(ctx, db.dialect.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
		return row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "username = ?", username)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, db.dialect.rebind("SELECT "+userColumns+" FROM users WHERE "+where), arg)
		return row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes a user and, by cascade, all of its expenses. It reports
// whether a user was deleted.
func (db *DB) DeleteUser(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, db.dialect.rebind("DELETE FROM users WHERE id = ?"), id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return n > 0, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	})
	return count, err
}
