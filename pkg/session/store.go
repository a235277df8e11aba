// Package session is the client-side persisted state: auth token, user id,
// preferred language and the hidden-post set. One Store instance is the single
// owner of the underlying database; components receive it explicitly instead
// of reaching for globals.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	keyAuthToken         = "auth_token"
	keyUserID            = "user_id"
	keyPreferredLanguage = "preferred_language"
	keyHiddenPosts       = "hidden_posts"
)

// Store is a small key-value store with last-writer-wins semantics. Values
// survive re-instantiation against the same database path.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS session_values (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM session_values WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO session_values (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

func (s *Store) AuthToken() (string, error) {
	return s.get(keyAuthToken)
}

func (s *Store) SetAuthToken(token string) error {
	return s.set(keyAuthToken, token)
}

func (s *Store) UserID() (string, error) {
	return s.get(keyUserID)
}

func (s *Store) SetUserID(id string) error {
	return s.set(keyUserID, id)
}

func (s *Store) PreferredLanguage() (string, error) {
	return s.get(keyPreferredLanguage)
}

func (s *Store) SetPreferredLanguage(language string) error {
	return s.set(keyPreferredLanguage, language)
}

// HiddenPosts returns the set of post ids the user has chosen to hide. The
// set is a pure view filter; it is never sent to the server.
func (s *Store) HiddenPosts() (map[string]bool, error) {
	raw, err := s.get(keyHiddenPosts)
	if err != nil {
		return nil, err
	}
	hidden := make(map[string]bool)
	if raw == "" {
		return hidden, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode hidden posts: %w", err)
	}
	for _, id := range ids {
		hidden[id] = true
	}
	return hidden, nil
}

// HidePost adds a post id to the hidden set. Hiding twice is a no-op.
func (s *Store) HidePost(postID string) error {
	hidden, err := s.HiddenPosts()
	if err != nil {
		return err
	}
	if hidden[postID] {
		return nil
	}
	hidden[postID] = true

	ids := make([]string, 0, len(hidden))
	for id := range hidden {
		ids = append(ids, id)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.set(keyHiddenPosts, string(raw))
}

func (s *Store) IsHidden(postID string) (bool, error) {
	hidden, err := s.HiddenPosts()
	if err != nil {
		return false, err
	}
	return hidden[postID], nil
}
