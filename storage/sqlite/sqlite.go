// Package sqlite is a Storage backed by a SQLite database in WAL
// mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/storage"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func init() {
	storage.Factories["sqlite"] = func(filename string) (storage.Storage, error) {
		return NewStorage(filename)
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS tuples (
	owner INTEGER NOT NULL,
	key   TEXT    NOT NULL,
	seq   INTEGER NOT NULL,
	tuple TEXT    NOT NULL,
	PRIMARY KEY (owner, key)
)`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// NotOpen is returned when the Storage is used before Open.
var NotOpen = errors.New("sqlite storage not open")

type Storage struct {
	Logger   *zap.Logger
	filename string
	db       *sql.DB
}

func NewStorage(filename string) (*Storage, error) {
	if filename == "" {
		return nil, fmt.Errorf("sqlite storage needs a filename")
	}
	return &Storage{
		Logger:   zap.NewNop(),
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.filename)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connect to database: %w", err)
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("apply schema: %w", err)
	}

	s.db = db
	s.Logger.Debug("opened", zap.String("filename", s.filename))
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) Load(ctx context.Context) ([]*core.Tuple, error) {
	if s.db == nil {
		return nil, NotOpen
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tuple FROM tuples ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer rows.Close()

	acc := make([]*core.Tuple, 0, 64)
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		var t core.Tuple
		if err := json.Unmarshal([]byte(js), &t); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		acc = append(acc, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	s.Logger.Debug("loaded", zap.Int("tuples", len(acc)))
	return acc, nil
}

func (s *Storage) Write(ctx context.Context, cs []storage.Change) error {
	if s.db == nil {
		return NotOpen
	}
	if len(cs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cs {
		if c.Tuple == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM tuples WHERE owner = ? AND key = ?`,
				c.Ref.Owner, c.Ref.Key)
		} else {
			var js []byte
			if js, err = json.Marshal(c.Tuple); err != nil {
				return fmt.Errorf("write %s: %w", c.Ref, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO tuples (owner, key, seq, tuple) VALUES (?, ?, ?, ?)
				ON CONFLICT(owner, key) DO UPDATE SET seq = excluded.seq, tuple = excluded.tuple
			`, c.Ref.Owner, c.Ref.Key, c.Seq, string(js))
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", c.Ref, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
