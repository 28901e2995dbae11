package credentials

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const (
	keyAccess  = "access"
	keyRefresh = "refresh"
)

// SQLiteStore persists the credential pair under fixed keys so a login
// survives client restarts.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz-client.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Pair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials WHERE key IN (?, ?)`, keyAccess, keyRefresh)
	if err != nil {
		return Pair{}, err
	}
	defer rows.Close()

	var pair Pair
	found := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Pair{}, err
		}
		switch key {
		case keyAccess:
			pair.Access = value
		case keyRefresh:
			pair.Refresh = value
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return Pair{}, err
	}
	if found < 2 {
		return Pair{}, ErrNoCredentials
	}
	return pair, nil
}

func (s *SQLiteStore) Save(ctx context.Context, pair Pair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range map[string]string{keyAccess: pair.Access, keyRefresh: pair.Refresh} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveAccess(ctx context.Context, access string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE credentials SET value = ? WHERE key = ?`, access, keyAccess)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoCredentials
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key IN (?, ?)`, keyAccess, keyRefresh)
	return err
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MemoryStore)(nil)
