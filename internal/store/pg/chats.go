package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

// PGChatStore implements store.ChatStore backed by Postgres.
type PGChatStore struct {
	db *sql.DB
}

func NewPGChatStore(db *sql.DB) *PGChatStore {
	return &PGChatStore{db: db}
}

const chatSelectCols = `c.id, c.chat_id, c.owner_id, c.title, c.kind, c.created_at`

// ============================================================
// Chats
// ============================================================

func (s *PGChatStore) CreateChat(ctx context.Context, chat *store.MonitoredChat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chats (chat_id, owner_id, title, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		chat.ChatID, chat.OwnerID, chat.Title, string(chat.Kind), chat.CreatedAt,
	).Scan(&chat.ID)
	return translateErr(err)
}

func (s *PGChatStore) GetChat(ctx context.Context, id int64) (*store.MonitoredChat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c WHERE c.id = $1`, id)
	return scanChat(row)
}

func (s *PGChatStore) GetChatByChatID(ctx context.Context, chatID int64) (*store.MonitoredChat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c WHERE c.chat_id = $1 ORDER BY c.id LIMIT 1`, chatID)
	return scanChat(row)
}

func (s *PGChatStore) ListChats(ctx context.Context, ownerID int64, kind store.ChatKind) ([]store.MonitoredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c
		 WHERE ($1::bigint = 0 OR c.owner_id = $1) AND ($2::text = '' OR c.kind = $2)
		 ORDER BY c.id`,
		ownerID, string(kind),
	)
	if err != nil {
		return nil, err
	}
	return scanChats(rows)
}

func (s *PGChatStore) DeleteChat(ctx context.Context, id int64) (*store.MonitoredChat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_links WHERE target_id = $1 OR required_id = $1`, id); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		`DELETE FROM chats c WHERE c.id = $1 RETURNING `+chatSelectCols, id)
	chat, err := scanChat(row)
	if err != nil {
		return nil, err
	}
	return chat, tx.Commit()
}

// ============================================================
// Links
// ============================================================

func (s *PGChatStore) CreateLink(ctx context.Context, targetID, requiredID int64) (*store.RequirementLink, error) {
	link := &store.RequirementLink{TargetID: targetID, RequiredID: requiredID}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chat_links (target_id, required_id) VALUES ($1, $2) RETURNING id`,
		targetID, requiredID,
	).Scan(&link.ID)
	if err != nil {
		return nil, translateErr(err)
	}
	return link, nil
}

func (s *PGChatStore) DeleteLink(ctx context.Context, targetID, requiredID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_links WHERE target_id = $1 AND required_id = $2`,
		targetID, requiredID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGChatStore) ListRequiredChats(ctx context.Context, targetID int64) ([]store.MonitoredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatSelectCols+` FROM chat_links l
		 JOIN chats c ON c.id = l.required_id
		 WHERE l.target_id = $1
		 ORDER BY l.id`,
		targetID,
	)
	if err != nil {
		return nil, err
	}
	return scanChats(rows)
}

func (s *PGChatStore) ListLinkableChats(ctx context.Context, targetID, ownerID int64) ([]store.MonitoredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c
		 WHERE c.owner_id = $1 AND c.id <> $2
		   AND NOT EXISTS (
		     SELECT 1 FROM chat_links l WHERE l.target_id = $2 AND l.required_id = c.id
		   )
		 ORDER BY c.id`,
		ownerID, targetID,
	)
	if err != nil {
		return nil, err
	}
	return scanChats(rows)
}

func scanChat(row rowScanner) (*store.MonitoredChat, error) {
	var c store.MonitoredChat
	var kind string
	if err := row.Scan(&c.ID, &c.ChatID, &c.OwnerID, &c.Title, &kind, &c.CreatedAt); err != nil {
		return nil, translateErr(err)
	}
	c.Kind = store.ChatKind(kind)
	return &c, nil
}

func scanChats(rows *sql.Rows) ([]store.MonitoredChat, error) {
	defer rows.Close()
	var chats []store.MonitoredChat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}
