// Package cache implements a content-addressed on-disk cache for HTTP
// responses, keyed by a hash of the request. A cache hit bypasses both the
// network call and the rate limiter, which is what makes repeated
// explorations over the same papers affordable.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTTL is how long entries stay valid.
const DefaultTTL = 7 * 24 * time.Hour

// Cache is a directory of JSON entry files, one per request hash.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	StoredAt time.Time `json:"stored_at"`
	Status   int       `json:"status"`
	Body     []byte    `json:"body"`
}

// Open opens or creates a cache at dir and prunes expired entries.
// A ttl of 0 means DefaultTTL.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	c := &Cache{dir: dir, ttl: ttl, now: time.Now}
	if err := c.prune(); err != nil {
		return nil, err
	}
	return c, nil
}

// Key hashes a request into a stable cache key.
func Key(method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(url))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached response body for key, or ok=false on a miss or
// an expired entry.
func (c *Cache) Get(key string) (body []byte, ok bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		os.Remove(c.path(key))
		return nil, false
	}
	return e.Body, true
}

// Put stores a response body under key. Errors are returned so callers can
// log them, but a failed Put never needs to abort the request that
// produced the body.
func (c *Cache) Put(key string, status int, body []byte) error {
	e := entry{StoredAt: c.now(), Status: status, Body: body}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return os.Rename(tmp, c.path(key))
}

// prune removes expired entries. Unreadable files are removed too; the
// cache is disposable by construction.
func (c *Cache) prune() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			os.Remove(path)
			continue
		}
		if c.now().Sub(e.StoredAt) > c.ttl {
			os.Remove(path)
		}
	}
	return nil
}
