// Package storage provides persistent storage for the risk decision service.
// It uses BoltDB as the underlying storage engine to keep an append-only
// ledger of credit decisions and the encoded feature vectors behind them.
//
// Keys are zero-padded nanosecond timestamps followed by the record ID, so a
// cursor walk returns records in time order and range queries are seeks.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	decisionsBucket = "decisions" // Bucket name for decision ledger records
	featuresBucket  = "features"  // Bucket name for encoded feature vectors

	// DBFile is the database file created under the data path.
	DBFile = "risk-ledger.db"
)

// Store provides persistent storage for decision records using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(decisionsBucket)); err != nil {
			return fmt.Errorf("create decisions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(featuresBucket)); err != nil {
			return fmt.Errorf("create features bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func recordKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

func timeKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", ts.UnixNano()))
}

// put stores v under a time-ordered key.
func (s *Store) put(bucket string, ts time.Time, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucket, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(recordKey(ts, id), data)
	})
}

// scanRange walks bucket records with start <= ts <= end in time order and
// hands each raw value to fn. Zero start or end leaves that side open.
func (s *Store) scanRange(bucket string, start, end time.Time, fn func([]byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()

		var k, v []byte
		if start.IsZero() {
			k, v = c.First()
		} else {
			k, v = c.Seek(timeKey(start))
		}

		var endKey []byte
		if !end.IsZero() {
			endKey = timeKey(end)
		}

		for ; k != nil; k, v = c.Next() {
			if endKey != nil && compareKeys(k[:len(endKey)], endKey) > 0 {
				break
			}
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanLatest walks up to limit records newest first.
func (s *Store) scanLatest(bucket string, limit int, fn func([]byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		n := 0
		for k, v := c.Last(); k != nil && (limit <= 0 || n < limit); k, v = c.Prev() {
			if err := fn(v); err != nil {
				return err
			}
			n++
		}
		return nil
	})
}

func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
