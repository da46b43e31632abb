package cookies

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	DefaultBoltBucket = "cookies"
	boltJarKey        = "jar"
)

// BoltStore keeps the jar, with every attribute, in a bbolt bucket.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps an open database.
func NewBoltStore(db *bbolt.DB, bucket string) *BoltStore {
	if bucket == "" {
		bucket = DefaultBoltBucket
	}
	return &BoltStore{db: db, bucket: []byte(bucket)}
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path, bucket string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewBoltStore(db, bucket), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(ctx context.Context) (*Jar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(boltJarKey))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%w (bolt %s): %w", ErrCookieLoad, s.bucket, err)
	}
	return NewJar(rec.Cookies...), nil
}

func (s *BoltStore) Save(ctx context.Context, jar *Jar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if jar == nil {
		return fmt.Errorf("%w: nil jar", ErrCookieSave)
	}
	data, err := json.Marshal(record{Version: recordVersion, Cookies: jar.Cookies()})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCookieSave, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(boltJarKey), data)
	})
	if err != nil {
		return fmt.Errorf("%w (bolt %s): %w", ErrCookieSave, s.bucket, err)
	}
	return nil
}
