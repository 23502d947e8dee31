package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.etcd.io/bbolt"
)

const (
	indexBucket            = "_indexes"
	defaultFileLockTimeout = 5 * time.Second
)

// BoltDocStore is an embedded DocStore over a single bbolt file. Each
// collection is a bucket of JSON documents. A collection with a unique index
// keys its documents by that field, otherwise by insertion sequence.
type BoltDocStore struct {
	mu      sync.RWMutex
	db      *bbolt.DB
	indexes map[string]string // collection -> unique field
}

// NewBoltDocStore opens (creating if needed) the bbolt file at path.
func NewBoltDocStore(path string, opts DialOptions) (*BoltDocStore, error) {
	timeout := opts.FileLockTimeout
	if timeout <= 0 {
		timeout = defaultFileLockTimeout
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}

	s := &BoltDocStore{db: db, indexes: map[string]string{}}
	if err := s.loadIndexes(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltDocStore) loadIndexes() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(indexBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			s.indexes[string(k)] = string(v)
			return nil
		})
	})
}

func (s *BoltDocStore) handle(ctx context.Context) (*bbolt.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

func (s *BoltDocStore) uniqueField(collection string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[collection]
}

func docKey(doc map[string]interface{}, field string) ([]byte, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingKeyField, field)
	}
	return []byte(fmt.Sprintf("%v", v)), nil
}

func (s *BoltDocStore) InsertOne(ctx context.Context, collection string, document interface{}) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	doc, err := normalize(document)
	if err != nil {
		return err
	}
	raw, err := sonic.Marshal(doc)
	if err != nil {
		return err
	}
	field := s.uniqueField(collection)

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}

		var key []byte
		if field != "" {
			if key, err = docKey(doc, field); err != nil {
				return err
			}
			if b.Get(key) != nil {
				return fmt.Errorf("%w: collection=%s %s=%s", ErrDuplicateKey, collection, field, key)
			}
		} else {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key = []byte(fmt.Sprintf("%020d", seq))
		}
		return b.Put(key, raw)
	})
}

func decodeDoc(collection string, k, v []byte) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if err := sonic.Unmarshal(v, &doc); err != nil {
		return nil, fmt.Errorf("%w: collection=%s key=%q: %v", ErrCorruptDocument, collection, k, err)
	}
	return doc, nil
}

// pointKey returns the bucket key when filter is exactly an equality on the
// collection's unique field.
func pointKey(field string, filter map[string]interface{}) ([]byte, bool) {
	if field == "" || len(filter) != 1 {
		return nil, false
	}
	key, err := docKey(filter, field)
	if err != nil {
		return nil, false
	}
	return key, true
}

// scan calls fn for every document in collection matching filter until fn
// returns false. An equality filter on the unique field is a single lookup.
func scan(b *bbolt.Bucket, collection, field string, filter map[string]interface{}, fn func(k, v []byte, doc map[string]interface{}) (bool, error)) error {
	if key, ok := pointKey(field, filter); ok {
		v := b.Get(key)
		if v == nil {
			return nil
		}
		doc, err := decodeDoc(collection, key, v)
		if err != nil {
			return err
		}
		// %v keys collide across types ("1" and 1), so the filter still decides
		if !matchesFilter(doc, filter) {
			return nil
		}
		_, err = fn(key, v, doc)
		return err
	}

	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		doc, err := decodeDoc(collection, k, v)
		if err != nil {
			return err
		}
		if !matchesFilter(doc, filter) {
			continue
		}
		more, err := fn(k, v, doc)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func (s *BoltDocStore) FindOne(ctx context.Context, collection string, filter Filter, result interface{}) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	f, err := normalize(filter)
	if err != nil {
		return err
	}

	field := s.uniqueField(collection)

	var found []byte
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return scan(b, collection, field, f, func(_, v []byte, _ map[string]interface{}) (bool, error) {
			found = append([]byte(nil), v...)
			return false, nil
		})
	})
	if err != nil {
		return err
	}
	if found == nil {
		return ErrNoDocuments
	}
	return sonic.Unmarshal(found, result)
}

func (s *BoltDocStore) FindMany(ctx context.Context, collection string, filter Filter, results interface{}) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	f, err := normalize(filter)
	if err != nil {
		return err
	}

	field := s.uniqueField(collection)

	var buf bytes.Buffer
	buf.WriteByte('[')
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		n := 0
		return scan(b, collection, field, f, func(_, v []byte, _ map[string]interface{}) (bool, error) {
			if n > 0 {
				buf.WriteByte(',')
			}
			buf.Write(v)
			n++
			return true, nil
		})
	})
	if err != nil {
		return err
	}
	buf.WriteByte(']')
	return sonic.Unmarshal(buf.Bytes(), results)
}

func (s *BoltDocStore) UpdateOne(ctx context.Context, collection string, filter Filter, set Fields) (int64, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}
	u, err := normalize(set)
	if err != nil {
		return 0, err
	}
	field := s.uniqueField(collection)
	if _, ok := u[field]; ok && field != "" {
		return 0, fmt.Errorf("cannot update unique field %s", field)
	}

	var matched int64
	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		var key []byte
		var doc map[string]interface{}
		err := scan(b, collection, field, f, func(k, _ []byte, d map[string]interface{}) (bool, error) {
			key, doc = append([]byte(nil), k...), d
			return false, nil
		})
		if err != nil || key == nil {
			return err
		}
		applyUpdate(doc, u)
		raw, err := sonic.Marshal(doc)
		if err != nil {
			return err
		}
		matched = 1
		return b.Put(key, raw)
	})
	return matched, err
}

func (s *BoltDocStore) deleteMatching(ctx context.Context, collection string, filter Filter, limit int64) (int64, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}

	field := s.uniqueField(collection)

	var deleted int64
	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		var keys [][]byte
		err := scan(b, collection, field, f, func(k, _ []byte, _ map[string]interface{}) (bool, error) {
			keys = append(keys, append([]byte(nil), k...))
			return limit <= 0 || int64(len(keys)) < limit, nil
		})
		if err != nil {
			return err
		}
		// deleting while iterating a cursor skips keys in bbolt
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *BoltDocStore) DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error) {
	return s.deleteMatching(ctx, collection, filter, 1)
}

func (s *BoltDocStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	return s.deleteMatching(ctx, collection, filter, 0)
}

func (s *BoltDocStore) CountDocuments(ctx context.Context, collection string, filter Filter) (int64, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}

	field := s.uniqueField(collection)

	var count int64
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return scan(b, collection, field, f, func(_, _ []byte, _ map[string]interface{}) (bool, error) {
			count++
			return true, nil
		})
	})
	return count, err
}

// EnsureUniqueIndex records field as the collection key and re-keys any
// existing documents, failing with ErrDuplicateKey if two share a value.
func (s *BoltDocStore) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if existing := s.uniqueField(collection); existing == field {
		return nil
	} else if existing != "" {
		return fmt.Errorf("collection %s already keyed by %s", collection, existing)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		idx, err := tx.CreateBucketIfNotExists([]byte(indexBucket))
		if err != nil {
			return err
		}
		if err := rekey(tx, collection, field); err != nil {
			return err
		}
		return idx.Put([]byte(collection), []byte(field))
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.indexes[collection] = field
	s.mu.Unlock()
	return nil
}

func rekey(tx *bbolt.Tx, collection, field string) error {
	old := tx.Bucket([]byte(collection))
	if old == nil {
		_, err := tx.CreateBucket([]byte(collection))
		return err
	}

	docs := map[string][]byte{}
	err := old.ForEach(func(k, v []byte) error {
		doc, err := decodeDoc(collection, k, v)
		if err != nil {
			return err
		}
		key, err := docKey(doc, field)
		if err != nil {
			return err
		}
		if _, dup := docs[string(key)]; dup {
			return fmt.Errorf("%w: collection=%s %s=%s", ErrDuplicateKey, collection, field, key)
		}
		docs[string(key)] = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return err
	}

	if err := tx.DeleteBucket([]byte(collection)); err != nil {
		return err
	}
	b, err := tx.CreateBucket([]byte(collection))
	if err != nil {
		return err
	}
	for k, v := range docs {
		if err := b.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltDocStore) Ping(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	return db.View(func(*bbolt.Tx) error { return nil })
}

func (s *BoltDocStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}
