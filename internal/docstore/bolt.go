package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
)

// BoltStore implements Store on an embedded BoltDB file. Each collection
// is a bucket; documents are JSON keyed by their filter.
type BoltStore struct {
	db     *bolt.DB
	logger *events.Logger
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string, logger *events.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range Collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:     db,
		logger: logger.WithField("component", "bolt_docstore"),
	}, nil
}

// Upsert merges doc into the document matching filter.
func (s *BoltStore) Upsert(ctx context.Context, collection string, filter Filter, doc models.Document) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(filter.key())

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))

		var existing models.Document
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("decode existing document: %w", err)
			}
		}

		data, err := json.Marshal(merge(existing, filter, doc))
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		return b.Put(key, data)
	})
	if err != nil {
		return &models.StorageError{Op: "upsert " + collection, Err: err}
	}
	return nil
}

// Get returns the document matching filter.
func (s *BoltStore) Get(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	var doc models.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(collection)).Get([]byte(filter.key()))
		if data == nil {
			return fmt.Errorf("%s %s: %w", collection, filter.key(), models.ErrNotFound)
		}
		return json.Unmarshal(data, &doc)
	})
	return doc, err
}

// Count returns the number of documents in collection.
func (s *BoltStore) Count(ctx context.Context, collection string) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(collection)).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
