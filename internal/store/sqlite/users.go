package sqlite

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

const userSelectCols = `id, chat_id, username, roles, active, created_at`

func (s *Store) CreateUser(ctx context.Context, chatID int64, username string) (*store.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (chat_id, username, roles, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		chatID, username, store.RoleUser, toMillis(time.Now()),
	)
	if err != nil {
		return nil, translateErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userSelectCols+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) GetUserByChatID(ctx context.Context, chatID int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userSelectCols+` FROM users WHERE chat_id = ?`, chatID)
	return scanUser(row)
}

func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) (*store.User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]store.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userSelectCols+` FROM users ORDER BY id LIMIT ? OFFSET ?`,
		limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, store.TotalPages(count, limit), rows.Err()
}

func scanUser(row rowScanner) (*store.User, error) {
	var u store.User
	var roles string
	var createdAt int64
	if err := row.Scan(&u.ID, &u.ChatID, &u.Username, &roles, &u.Active, &createdAt); err != nil {
		return nil, translateErr(err)
	}
	u.Roles = store.SplitRoles(roles)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
