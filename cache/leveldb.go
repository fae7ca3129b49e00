package cache

import (
	"encoding/json"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/shipfed/navigator/internal/core"
)

// LevelDBCache persists entries across process restarts. Values are
// JSON-serialized {value, expires} pairs under a namespaced key prefix, so
// several hosts can share one store directory.
type LevelDBCache struct {
	db     *leveldb.DB
	prefix string
}

// OpenLevelDB opens (or creates) the store at path. A storage-unavailable
// failure surfaces as a CacheError; callers treat cache errors as misses.
func OpenLevelDB(path, namespace string) (*LevelDBCache, error) {
	if path == "" {
		path = "./data/navigator-cache"
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, &core.CacheError{Op: "open", Detail: err.Error()}
	}
	if namespace == "" {
		namespace = "shipfed"
	}
	return &LevelDBCache{db: db, prefix: namespace + ":"}, nil
}

// Close releases the underlying store.
func (l *LevelDBCache) Close() error {
	return l.db.Close()
}

func (l *LevelDBCache) Get(key string) (any, bool, error) {
	b, err := l.db.Get([]byte(l.prefix+key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &core.CacheError{Op: "get", Detail: err.Error()}
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		// Corrupt record: drop it and report a miss.
		_ = l.db.Delete([]byte(l.prefix+key), nil)
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		_ = l.db.Delete([]byte(l.prefix+key), nil)
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (l *LevelDBCache) Set(key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(entry{Value: value, Expires: expiryFor(time.Now(), ttl)})
	if err != nil {
		return &core.CacheError{Op: "set", Detail: err.Error()}
	}
	if err := l.db.Put([]byte(l.prefix+key), b, nil); err != nil {
		return &core.CacheError{Op: "set", Detail: err.Error()}
	}
	return nil
}

func (l *LevelDBCache) Has(key string) (bool, error) {
	_, ok, err := l.Get(key)
	return ok, err
}

func (l *LevelDBCache) Delete(key string) error {
	if err := l.db.Delete([]byte(l.prefix+key), nil); err != nil {
		return &core.CacheError{Op: "delete", Detail: err.Error()}
	}
	return nil
}

func (l *LevelDBCache) Clear() error {
	it := l.db.NewIterator(util.BytesPrefix([]byte(l.prefix)), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return &core.CacheError{Op: "clear", Detail: err.Error()}
	}
	if err := l.db.Write(batch, nil); err != nil {
		return &core.CacheError{Op: "clear", Detail: err.Error()}
	}
	return nil
}

func (l *LevelDBCache) Size() (int, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(l.prefix)), nil)
	defer it.Release()

	now := time.Now()
	n := 0
	for it.Next() {
		var e entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			continue
		}
		if !e.expired(now) {
			n++
		}
	}
	if err := it.Error(); err != nil {
		return 0, &core.CacheError{Op: "size", Detail: err.Error()}
	}
	return n, nil
}
