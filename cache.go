// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheStore is a key-value store for cached responses.
//
// Implementations must be safe for concurrent use. See [*MemoryCacheStore]
// and the redisstore subpackage.
type CacheStore interface {
	// Get returns the value for key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CacheConfig configures the cache stage installed by [*Builder.SetCache].
//
// The zero value caches GET and HEAD responses only when the server
// sends a Cache-Control max-age directive.
type CacheConfig struct {
	// DefaultTTL is the TTL of responses without a max-age directive.
	// Zero or negative means that such responses are not stored.
	DefaultTTL time.Duration

	// Methods lists the cacheable methods. Empty means GET and HEAD.
	Methods []string

	// KeyGenerator maps a request to its cache key. Nil means [DefaultCacheKey].
	KeyGenerator func(req *http.Request) string

	// BlacklistedPaths lists patterns of URL paths never cached.
	BlacklistedPaths []*regexp.Regexp
}

func (c CacheConfig) withDefaults() CacheConfig {
	if len(c.Methods) <= 0 {
		c.Methods = []string{http.MethodGet, http.MethodHead}
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = DefaultCacheKey
	}
	return c
}

// DefaultCacheKey returns the hex-encoded SHA-256 of the request method and URL.
func DefaultCacheKey(req *http.Request) string {
	sum := sha256.Sum256([]byte(req.Method + " " + req.URL.String()))
	return hex.EncodeToString(sum[:])
}

// cacheableStatuses are the status codes whose responses may be stored.
var cacheableStatuses = []int{200, 203, 300, 301, 302, 404, 410}

// cachedResponse is the serialized form of a stored response.
type cachedResponse struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

func (c *cachedResponse) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        c.Status,
		StatusCode:    c.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        c.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}

// cacheStage serves responses from a [CacheStore].
//
// Concurrent misses for the same key share a single round trip.
type cacheStage struct {
	config        CacheConfig
	errClassifier ErrClassifier
	group         singleflight.Group
	logger        SLogger
	store         CacheStore
	timeNow       func() time.Time
}

func newCacheStage(cfg *Config, store CacheStore, config CacheConfig, logger SLogger) *cacheStage {
	return &cacheStage{
		config:        config.withDefaults(),
		errClassifier: cfg.ErrClassifier,
		logger:        logger,
		store:         store,
		timeNow:       cfg.TimeNow,
	}
}

var _ Stage = &cacheStage{}

// Kind implements [Stage].
func (*cacheStage) Kind() StageKind {
	return KindCache
}

// Handle implements [Stage].
func (s *cacheStage) Handle(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	if !s.cacheableRequest(req) {
		return next.RoundTrip(req)
	}
	key := s.config.KeyGenerator(req)
	if entry, found := s.lookup(req.Context(), key); found {
		return entry.response(req), nil
	}
	// The fetch is shared by every waiter on key, so it must outlive the
	// caller that started it. Each waiter still honors its own context.
	shared := req.WithContext(context.WithoutCancel(req.Context()))
	ch := s.group.DoChan(key, func() (any, error) {
		return s.fetch(shared, next, key)
	})
	select {
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*cachedResponse).response(req), nil
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

func (s *cacheStage) cacheableRequest(req *http.Request) bool {
	if !slices.Contains(s.config.Methods, req.Method) {
		return false
	}
	for _, pattern := range s.config.BlacklistedPaths {
		if pattern.MatchString(req.URL.Path) {
			return false
		}
	}
	return true
}

func (s *cacheStage) lookup(ctx context.Context, key string) (*cachedResponse, bool) {
	t0 := s.timeNow()
	data, found, err := s.store.Get(ctx, key)
	var entry cachedResponse
	if err == nil && found {
		if err = json.Unmarshal(data, &entry); err != nil {
			err = errors.Join(err, s.store.Delete(ctx, key))
			found = false
		}
	}
	s.logger.Info(
		"cacheLookup",
		slog.Any("err", err),
		slog.String("errClass", s.errClassifier.Classify(err)),
		slog.Bool("hit", err == nil && found),
		slog.String("key", key),
		slog.Time("t0", t0),
		slog.Time("t", s.timeNow()),
	)
	if err != nil || !found {
		return nil, false
	}
	return &entry, true
}

func (s *cacheStage) fetch(req *http.Request, next http.RoundTripper, key string) (*cachedResponse, error) {
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	entry := &cachedResponse{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if ttl, ok := s.responseTTL(resp); ok {
		s.save(req.Context(), key, entry, ttl)
	}
	return entry, nil
}

func (s *cacheStage) save(ctx context.Context, key string, entry *cachedResponse, ttl time.Duration) {
	t0 := s.timeNow()
	data, err := json.Marshal(entry)
	if err == nil {
		err = s.store.Set(ctx, key, data, ttl)
	}
	s.logger.Info(
		"cacheStore",
		slog.Any("err", err),
		slog.String("errClass", s.errClassifier.Classify(err)),
		slog.String("key", key),
		slog.Duration("ttl", ttl),
		slog.Time("t0", t0),
		slog.Time("t", s.timeNow()),
	)
}

// responseTTL returns how long to store resp and whether to store it at all.
func (s *cacheStage) responseTTL(resp *http.Response) (time.Duration, bool) {
	if !slices.Contains(cacheableStatuses, resp.StatusCode) {
		return 0, false
	}
	ttl := s.config.DefaultTTL
	for _, value := range resp.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			name, arg, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(name) {
			case "no-store", "no-cache":
				return 0, false
			case "max-age":
				if seconds, err := strconv.Atoi(strings.Trim(arg, `"`)); err == nil {
					ttl = time.Duration(seconds) * time.Second
				}
			}
		}
	}
	return ttl, ttl > 0
}

// MemoryCacheStore is an in-process [CacheStore].
type MemoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	timeNow func() time.Time
}

type memoryCacheEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCacheStore returns a new [*MemoryCacheStore]. A nil timeNow means [time.Now].
func NewMemoryCacheStore(timeNow func() time.Time) *MemoryCacheStore {
	if timeNow == nil {
		timeNow = time.Now
	}
	return &MemoryCacheStore{
		entries: make(map[string]memoryCacheEntry),
		timeNow: timeNow,
	}
}

var _ CacheStore = &MemoryCacheStore{}

// Get implements [CacheStore].
func (m *MemoryCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, found := m.entries[key]
	if !found {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && !m.timeNow().Before(entry.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return bytes.Clone(entry.value), true, nil
}

// Set implements [CacheStore]. A non-positive ttl never expires.
func (m *MemoryCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryCacheEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		entry.expires = m.timeNow().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete implements [CacheStore].
func (m *MemoryCacheStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not
// yet evicted.
func (m *MemoryCacheStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
