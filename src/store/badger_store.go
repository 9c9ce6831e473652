package store

import (
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger"
	"github.com/ugorji/go/codec"
)

const revPrefix = "rev"

// revisionRecord is the on-disk value for one revision.
type revisionRecord struct {
	Parents []string
}

func revisionKey(id string) []byte {
	return []byte(revPrefix + "_" + id)
}

// BadgerStore implements the Store interface on top of a badger database.
// One store corresponds to one repository directory on disk.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore creates a brand new store at path, which must not already
// contain a database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return openBadger(path)
}

// LoadBadgerStore opens an existing store.
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewErr(NoRepository, path)
	}
	return openBadger(path)
}

func openBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: handle, path: path}, nil
}

// Path returns the directory holding the database files.
func (s *BadgerStore) Path() string {
	return filepath.Clean(s.path)
}

func marshalRecord(rec *revisionRecord) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, new(codec.CborHandle))
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshalRecord(data []byte) (*revisionRecord, error) {
	rec := new(revisionRecord)
	dec := codec.NewDecoderBytes(data, new(codec.CborHandle))
	if err := dec.Decode(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AddRevision implements the Store interface.
func (s *BadgerStore) AddRevision(id string, parents []string) error {
	key := revisionKey(id)
	return s.db.Update(func(tx *badger.Txn) error {
		if _, err := tx.Get(key); err == nil {
			return NewErr(RevisionExists, id)
		}
		val, err := marshalRecord(&revisionRecord{Parents: parents})
		if err != nil {
			return err
		}
		return tx.Set(key, val)
	})
}

// HasRevision implements the Store interface.
func (s *BadgerStore) HasRevision(id string) (bool, error) {
	found := false
	err := s.db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(revisionKey(id))
		if err == nil {
			found = true
			return nil
		}
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	return found, err
}

// AllRevisionIDs implements the Store interface.
func (s *BadgerStore) AllRevisionIDs() ([]string, error) {
	var ids []string
	prefix := []byte(revPrefix + "_")
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

// GetParentMap implements the Store interface.
func (s *BadgerStore) GetParentMap(ids []string) (map[string][]string, error) {
	res := make(map[string][]string)
	err := s.db.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(revisionKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := unmarshalRecord(val)
			if err != nil {
				return err
			}
			res[id] = rec.Parents
		}
		return nil
	})
	return res, err
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
