// Copyright 2025 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package fork

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	// BackendLevelDB stores the fork cache in a goleveldb database.
	BackendLevelDB = "leveldb"
	// BackendPebble stores the fork cache in a pebble database.
	BackendPebble = "pebble"

	minCleanCache = 16 * 1024 * 1024
	minHandles    = 16
)

var (
	errCorruptEntry = errors.New("corrupted fork cache entry")
	errDirLocked    = errors.New("fork cache directory already in use")
)

func crypto256(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}

// kvstore is the minimal persistent store the disk cache needs.
type kvstore interface {
	get(key []byte) ([]byte, bool, error)
	put(key, value []byte) error
	close() error
}

// DiskCache is a persistent key-value layer fronted by an in-memory clean cache,
// in the same way the trie database fronts its disk layer.
// DiskCache 是持久化键值层，前面有一个内存 clean cache。
type DiskCache struct {
	db    kvstore
	clean *fastcache.Cache
	lock  *flock.Flock
	dir   string
	log   log.Logger
}

// OpenDiskCache opens (or creates) the cache directory with the given backend.
// The directory is locked for the lifetime of the cache.
func OpenDiskCache(dir, backend string, cleanCacheBytes int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, "LOCK.fork"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errDirLocked, dir)
	}
	var db kvstore
	switch backend {
	case BackendLevelDB, "":
		db, err = openLevelDB(filepath.Join(dir, "leveldb"))
	case BackendPebble:
		db, err = openPebble(filepath.Join(dir, "pebble"))
	default:
		err = fmt.Errorf("unknown fork cache backend %q", backend)
	}
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if cleanCacheBytes < minCleanCache {
		cleanCacheBytes = minCleanCache
	}
	logger := log.New("forkcache", dir)
	logger.Info("Opened fork cache", "backend", backend, "clean", common.StorageSize(cleanCacheBytes))

	return &DiskCache{
		db:    db,
		clean: fastcache.New(cleanCacheBytes),
		lock:  lock,
		dir:   dir,
		log:   logger,
	}, nil
}

func (d *DiskCache) get(key []byte) ([]byte, bool) {
	if blob, ok := d.clean.HasGet(nil, key); ok {
		return blob, true
	}
	blob, ok, err := d.db.get(key)
	if err != nil {
		d.log.Warn("Fork cache read failed", "err", err)
		return nil, false
	}
	if ok {
		d.clean.Set(key, blob)
	}
	return blob, ok
}

func (d *DiskCache) put(key, value []byte) {
	d.clean.Set(key, value)
	if err := d.db.put(key, value); err != nil {
		d.log.Warn("Fork cache write failed", "err", err)
	}
}

// Close flushes and closes the database and releases the directory lock.
func (d *DiskCache) Close() error {
	d.clean.Reset()
	err := d.db.close()
	if uerr := d.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

type levelStore struct {
	db *leveldb.DB
}

func openLevelDB(path string) (*levelStore, error) {
	options := &opt.Options{
		OpenFilesCacheCapacity: minHandles,
		BlockCacheCapacity:     minCleanCache / 2,
		WriteBuffer:            minCleanCache / 4,
	}
	db, err := leveldb.OpenFile(path, options)
	if _, corrupted := err.(*leveldberrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &levelStore{db: db}, nil
}

func (s *levelStore) get(key []byte) ([]byte, bool, error) {
	blob, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (s *levelStore) put(key, value []byte) error { return s.db.Put(key, value, nil) }
func (s *levelStore) close() error                { return s.db.Close() }

type pebbleStore struct {
	db *pebble.DB
}

func openPebble(path string) (*pebbleStore, error) {
	cache := pebble.NewCache(minCleanCache / 2)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		MaxOpenFiles: minHandles,
		Cache:        cache,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) get(key []byte) ([]byte, bool, error) {
	blob, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return common.CopyBytes(blob), true, nil
}

func (s *pebbleStore) put(key, value []byte) error { return s.db.Set(key, value, pebble.NoSync) }
func (s *pebbleStore) close() error                { return s.db.Close() }
