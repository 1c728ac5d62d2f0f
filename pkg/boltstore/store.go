package boltstore

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database behind the in-memory cache for ACID persistence.
// All writes are write-through: the live gamedb maps are mutated by callers and
// the dirty entities handed here in the same logical step.
type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketAccounts, bucketAccountNames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: gamedb.NewDatabase(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// DB returns the in-memory database cache.
func (s *Store) DB() *gamedb.Database {
	return s.cache
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutObject persists a single object (write-through).
func (s *Store) PutObject(obj *gamedb.Object) error {
	data, err := encodeObject(obj)
	if err != nil {
		return fmt.Errorf("boltstore: encode object #%d: %w", obj.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Put(refToKey(obj.Ref), data); err != nil {
			return err
		}
		return putMeta(tx, s.cache)
	})
}

// PutObjects persists multiple objects in a single bbolt transaction.
func (s *Store) PutObjects(objs ...*gamedb.Object) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, obj := range objs {
			if obj == nil {
				continue
			}
			data, err := encodeObject(obj)
			if err != nil {
				return fmt.Errorf("boltstore: encode object #%d: %w", obj.Ref, err)
			}
			if err := b.Put(refToKey(obj.Ref), data); err != nil {
				return err
			}
		}
		return putMeta(tx, s.cache)
	})
}

// DeleteObject removes an object from bbolt.
func (s *Store) DeleteObject(ref gamedb.ObjRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(refToKey(ref))
	})
}

// PutAccount persists an account and its name index entry. If oldName is
// non-empty the stale index entry is removed in the same transaction.
func (s *Store) PutAccount(acct *gamedb.Account, oldName string) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return fmt.Errorf("boltstore: encode account %d: %w", acct.ID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketAccounts).Put(idToKey(acct.ID), data); err != nil {
			return err
		}
		names := tx.Bucket(bucketAccountNames)
		if oldName != "" && !strings.EqualFold(oldName, acct.Name) {
			names.Delete([]byte(strings.ToLower(oldName)))
		}
		if err := names.Put([]byte(strings.ToLower(acct.Name)), idToKey(acct.ID)); err != nil {
			return err
		}
		return putMeta(tx, s.cache)
	})
}

// DeleteAccount removes an account and its name index entry from bbolt.
func (s *Store) DeleteAccount(id gamedb.AccountID, name string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketAccounts).Delete(idToKey(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketAccountNames).Delete([]byte(strings.ToLower(name)))
	})
}

// putMeta writes the id counters inside an existing transaction.
func putMeta(tx *bbolt.Tx, db *gamedb.Database) error {
	b := tx.Bucket(bucketMeta)
	if err := b.Put(keyNextRef, intToKey(int(db.NextRef))); err != nil {
		return err
	}
	return b.Put(keyNextAccount, intToKey(int(db.NextAccount)))
}

// LoadAll reads the entire bbolt database into the in-memory cache.
func (s *Store) LoadAll() error {
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if v := b.Get(keyNextRef); v != nil {
			s.cache.NextRef = gamedb.ObjRef(keyToInt(v))
		}
		if v := b.Get(keyNextAccount); v != nil {
			s.cache.NextAccount = gamedb.AccountID(keyToInt(v))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: load meta: %w", err)
	}

	objCount := 0
	err = s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		return b.ForEach(func(k, v []byte) error {
			obj, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("decode object: %w", err)
			}
			s.cache.AddObject(obj)
			objCount++
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load objects: %w", err)
	}

	acctCount := 0
	err = s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		return b.ForEach(func(k, v []byte) error {
			acct, err := decodeAccount(v)
			if err != nil {
				return fmt.Errorf("decode account: %w", err)
			}
			s.cache.AddAccount(acct)
			acctCount++
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load accounts: %w", err)
	}

	log.Printf("boltstore: loaded %d objects, %d accounts from bolt", objCount, acctCount)
	return nil
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}

// HasData returns true if the bbolt database contains any accounts.
func (s *Store) HasData() bool {
	hasData := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketAccounts).Stats().KeyN > 0 {
			hasData = true
		}
		return nil
	})
	return hasData
}
