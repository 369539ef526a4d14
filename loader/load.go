// Package loader reads workload scripts into programs a task can run.
// Parsed programs are cached by the digest of their source.
package loader

import (
	"bytes"
	"encoding/base64"
	"io"
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/hatch/log"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

type LoaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewLoaderCache(size int) (*LoaderCache, error) {
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating loader cache")
	}

	return &LoaderCache{cache: cache}, nil
}

func (l *LoaderCache) Lookup(key string) (*Program, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*Program), true
}

func (l *LoaderCache) Set(key string, p *Program) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, p)
}

func (l *LoaderCache) Len() int {
	return l.cache.Len()
}

func NewLoader(cache *LoaderCache) *Loader {
	return &Loader{
		L:     log.L,
		cache: cache,
	}
}

type Loader struct {
	L     hclog.Logger
	cache *LoaderCache
}

func (l *Loader) LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	p, err := l.Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}

	return p, nil
}

// CacheKey is the digest a script is cached under.
func CacheKey(src []byte) string {
	sum := blake2b.Sum256(src)
	return base64.URLEncoding.EncodeToString(sum[:])
}

func (l *Loader) Load(r io.Reader) (*Program, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var cacheKey string

	if l.cache != nil {
		cacheKey = CacheKey(src)

		l.L.Debug("looking for cached program", "key", cacheKey)

		if p, ok := l.cache.Lookup(cacheKey); ok {
			return p, nil
		}
	}

	ops, err := Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	p := &Program{Ops: ops}

	if l.L.IsDebug() {
		l.L.Debug("parsed program", "ops", len(ops), "dump", spew.Sdump(ops))
	}

	if l.cache != nil {
		l.L.Debug("cached program", "key", cacheKey)
		l.cache.Set(cacheKey, p)
	}

	return p, nil
}
