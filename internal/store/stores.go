package store

import "io"

// Stores is the top-level container for all storage backends.
// Both managed (Postgres) and standalone (SQLite) modes fill every field.
type Stores struct {
	Users  UserStore
	Chats  ChatStore
	closer io.Closer
}

// NewStores bundles the stores with the handle that owns their connections.
func NewStores(users UserStore, chats ChatStore, closer io.Closer) *Stores {
	return &Stores{Users: users, Chats: chats, closer: closer}
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	PostgresDSN string
	SQLitePath  string
}

// TotalPages returns the number of pages needed for count rows.
func TotalPages(count, limit int) int {
	if limit <= 0 || count <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}

// SplitRoles parses the comma-joined roles column shared by both backends.
func SplitRoles(s string) []string {
	var roles []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if r := s[start:i]; r != "" {
				roles = append(roles, r)
			}
			start = i + 1
		}
	}
	if len(roles) == 0 {
		return []string{RoleUser}
	}
	return roles
}
