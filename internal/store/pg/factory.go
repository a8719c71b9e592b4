package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// Postgres error codes we translate into store errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Constraint names from migrations/000001_init.up.sql.
const (
	constraintChatOwnerUnique = "chats_owner_chat_unique"
	constraintLinkUnique      = "chat_links_unique"
	constraintUserChatUnique  = "users_chat_id_key"
)

// OpenDB opens a pooled Postgres handle through the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPGStores creates all stores backed by Postgres (managed mode).
// The schema is owned by golang-migrate (see `subgate migrate up`).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return store.NewStores(NewPGUserStore(db), NewPGChatStore(db), db), nil
}

// translateErr maps driver errors onto store sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			switch pgErr.ConstraintName {
			case constraintLinkUnique:
				return store.ErrDuplicateLink
			case constraintChatOwnerUnique:
				return store.ErrDuplicateChat
			case constraintUserChatUnique:
				return store.ErrDuplicateUser
			}
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Detail)
		}
	}
	return err
}
