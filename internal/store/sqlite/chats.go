package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/subgate/internal/store"
)

const chatSelectCols = `c.id, c.chat_id, c.owner_id, c.title, c.kind, c.created_at`

func (s *Store) CreateChat(ctx context.Context, chat *store.MonitoredChat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, owner_id, title, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ChatID, chat.OwnerID, chat.Title, string(chat.Kind), toMillis(chat.CreatedAt),
	)
	if err != nil {
		return translateErr(err)
	}
	chat.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetChat(ctx context.Context, id int64) (*store.MonitoredChat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatSelectCols+` FROM chats c WHERE c.id = ?`, id)
	return scanChat(row)
}

func (s *Store) GetChatByChatID(ctx context.Context, chatID int64) (*store.MonitoredChat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c WHERE c.chat_id = ? ORDER BY c.id LIMIT 1`, chatID)
	return scanChat(row)
}

func (s *Store) ListChats(ctx context.Context, ownerID int64, kind store.ChatKind) ([]store.MonitoredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c
		 WHERE (? = 0 OR c.owner_id = ?) AND (? = '' OR c.kind = ?)
		 ORDER BY c.id`,
		ownerID, ownerID, string(kind), string(kind),
	)
	if err != nil {
		return nil, err
	}
	return scanChats(rows)
}

func (s *Store) DeleteChat(ctx context.Context, id int64) (*store.MonitoredChat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	chat, err := scanChat(tx.QueryRowContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c WHERE c.id = ?`, id))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_links WHERE target_id = ? OR required_id = ?`, id, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return chat, tx.Commit()
}

func (s *Store) CreateLink(ctx context.Context, targetID, requiredID int64) (*store.RequirementLink, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_links (target_id, required_id) VALUES (?, ?)`, targetID, requiredID)
	if err != nil {
		return nil, translateErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &store.RequirementLink{ID: id, TargetID: targetID, RequiredID: requiredID}, nil
}

func (s *Store) DeleteLink(ctx context.Context, targetID, requiredID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_links WHERE target_id = ? AND required_id = ?`, targetID, requiredID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRequiredChats(ctx context.Context, targetID int64) ([]store.MonitoredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatSelectCols+` FROM chat_links l
		 JOIN chats c ON c.id = l.required_id
		 WHERE l.target_id = ?
		 ORDER BY l.id`,
		targetID,
	)
	if err != nil {
		return nil, err
	}
	return scanChats(rows)
}

func (s *Store) ListLinkableChats(ctx context.Context, targetID, ownerID int64) ([]store.MonitoredChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatSelectCols+` FROM chats c
		 WHERE c.owner_id = ? AND c.id <> ?
		   AND NOT EXISTS (
		     SELECT 1 FROM chat_links l WHERE l.target_id = ? AND l.required_id = c.id
		   )
		 ORDER BY c.id`,
		ownerID, targetID, targetID,
	)
	if err != nil {
		return nil, err
	}
	return scanChats(rows)
}

func scanChat(row rowScanner) (*store.MonitoredChat, error) {
	var c store.MonitoredChat
	var kind string
	var createdAt int64
	if err := row.Scan(&c.ID, &c.ChatID, &c.OwnerID, &c.Title, &kind, &createdAt); err != nil {
		return nil, translateErr(err)
	}
	c.Kind = store.ChatKind(kind)
	c.CreatedAt = fromMillis(createdAt)
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
