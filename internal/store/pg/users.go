package pg

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// PGUserStore implements store.UserStore backed by Postgres.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

const userSelectCols = `id, chat_id, username, array_to_string(roles, ','), active, created_at`

func (s *PGUserStore) CreateUser(ctx context.Context, chatID int64, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (chat_id, username, active, created_at)
		 VALUES ($1, $2, true, now())
		 RETURNING `+userSelectCols,
		chatID, username,
	)
	return scanUser(row)
}

func (s *PGUserStore) GetUser(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PGUserStore) GetUserByChatID(ctx context.Context, chatID int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE chat_id = $1`, chatID)
	return scanUser(row)
}

// SetUserActive locks the row, flips the flag and returns the updated user.
func (s *PGUserStore) SetUserActive(ctx context.Context, id int64, active bool) (*store.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var locked int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return nil, translateErr(err)
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE users SET active = $1 WHERE id = $2 RETURNING `+userSelectCols,
		active, id,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return u, tx.Commit()
}

func (s *PGUserStore) ListUsers(ctx context.Context, page, limit int) ([]store.User, int, error) {
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
		`SELECT `+userSelectCols+` FROM users ORDER BY id LIMIT $1 OFFSET $2`,
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var u store.User
	var roles string
	if err := row.Scan(&u.ID, &u.ChatID, &u.Username, &roles, &u.Active, &u.CreatedAt); err != nil {
		return nil, translateErr(err)
	}
	u.Roles = store.SplitRoles(roles)
	return &u, nil
}
