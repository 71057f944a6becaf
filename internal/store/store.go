package store

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store is the durable set of sealed posts: (community, post_id) pairs whose
// comments have been fetched and written. Once a pair is marked it stays
// marked for the life of the store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS synced_posts (
		community TEXT NOT NULL,
		post_id INTEGER NOT NULL,
		synced_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (community, post_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) IsSynced(community string, postID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM synced_posts WHERE community = ? AND post_id = ?`,
		community, postID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query synced state: %w", err)
	}
	return true, nil
}

// MarkSynced records a sealed post. Marking an already-marked post is a no-op.
func (s *Store) MarkSynced(community string, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO synced_posts (community, post_id) VALUES (?, ?)`,
		community, postID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark post synced: %w", err)
	}
	return nil
}

// Count returns how many sealed posts are recorded for a community.
func (s *Store) Count(community string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM synced_posts WHERE community = ?`,
		community,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count synced posts: %w", err)
	}
	return n, nil
}

// ImportLegacy seeds the synced set from a pre-existing <community>.jsonl
// post file, so directories written by earlier harvester versions are not
// re-fetched. Returns the number of post ids imported. A missing file is
// not an error.
func (s *Store) ImportLegacy(community, jsonlPath string) (int, error) {
	file, err := os.Open(jsonlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open legacy post file: %w", err)
	}
	defer file.Close()

	imported := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record struct {
			Post struct {
				ID int64 `json:"id"`
			} `json:"post"`
		}
		if err := json.Unmarshal(line, &record); err != nil {
			log.Warn().Err(err).Str("file", jsonlPath).Msg("Skipping unparseable legacy post line")
			continue
		}
		if record.Post.ID == 0 {
			continue
		}
		if err := s.MarkSynced(community, record.Post.ID); err != nil {
			return imported, err
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, fmt.Errorf("failed to read legacy post file: %w", err)
	}
	return imported, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
