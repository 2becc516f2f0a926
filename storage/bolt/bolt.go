// Package bolt is a Storage backed by a bbolt database file.
//
// Tuples live in one bucket, keyed by "owner:key", as JSON.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/storage"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

func init() {
	storage.Factories["bolt"] = func(filename string) (storage.Storage, error) {
		return NewStorage(filename)
	}
}

var bucket = []byte("tuples")

// NotOpen is returned when the Storage is used before Open.
var NotOpen = errors.New("bolt storage not open")

type Storage struct {
	Logger   *zap.Logger
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	if filename == "" {
		return nil, fmt.Errorf("bolt storage needs a filename")
	}
	return &Storage{
		Logger:   zap.NewNop(),
		filename: filename,
	}, nil
}

// Open opens (or creates) the database.  It fails after a second if
// another process holds the file.
func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return err
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
	acc := make([]*core.Tuple, 0, 64)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, bs := c.First(); k != nil; k, bs = c.Next() {
			var t core.Tuple
			if err := json.Unmarshal(bs, &t); err != nil {
				return fmt.Errorf("tuple %s: %w", k, err)
			}
			acc = append(acc, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
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

	vals := make([][]byte, len(cs))
	for i, c := range cs {
		if c.Tuple == nil {
			continue
		}
		js, err := json.Marshal(c.Tuple)
		if err != nil {
			return err
		}
		vals[i] = js
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		for i, c := range cs {
			var (
				key = []byte(c.Ref.String())
				err error
			)
			if vals[i] == nil {
				err = b.Delete(key)
			} else {
				err = b.Put(key, vals[i])
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
