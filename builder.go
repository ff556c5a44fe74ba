// SPDX-License-Identifier: GPL-3.0-or-later

package ipquery

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// Builder owns a transport and an ordered list of [Stage] and compiles
// them into a [*CompiledClient].
//
// Stages run in insertion order on the way to the transport and in
// reverse order on the way back. The optional cache stage always runs
// last, right above the transport, so it sees the fully decorated request.
//
// The compiled client is memoized: every mutation invalidates it and
// the next call to [*Builder.Compiled] rebuilds it. A single mutex
// guards the stages, the cache and the memo, so a mutation is either
// entirely visible to a later Compiled call or not at all.
//
// Construct using [NewBuilder] or [NewDefaultBuilder].
type Builder struct {
	// cache is the optional cache stage.
	cache *cacheStage

	// cfg is the common configuration.
	cfg *Config

	// compiled is the memoized compiled client or nil.
	compiled *CompiledClient

	// logger is the [SLogger] to use.
	logger SLogger

	// mu protects cache, compiled and stages.
	mu sync.Mutex

	// stages contains the stages in insertion order.
	stages []Stage

	// txp is the transport, shared by all the compiled clients.
	txp http.RoundTripper
}

// NewBuilder returns a new [*Builder] using the given transport.
//
// The cfg argument contains the common configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewBuilder(cfg *Config, txp http.RoundTripper, logger SLogger) *Builder {
	return &Builder{cfg: cfg, logger: logger, txp: txp}
}

// NewDefaultBuilder returns a new [*Builder] using [NewDefaultTransport].
func NewDefaultBuilder(cfg *Config, logger SLogger) *Builder {
	return NewBuilder(cfg, NewDefaultTransport(cfg, logger), logger)
}

// Config returns the [*Config] used by the builder.
func (b *Builder) Config() *Config {
	return b.cfg
}

// Logger returns the [SLogger] used by the builder.
func (b *Builder) Logger() SLogger {
	return b.logger
}

// AddStage appends stage to the pipeline.
func (b *Builder) AddStage(stage Stage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stages = append(b.stages, stage)
	b.compiled = nil
}

// RemoveStages removes all the stages of the given kind and returns
// whether it removed any. The compiled client survives when nothing
// was removed.
func (b *Builder) RemoveStages(kind StageKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(kind)
}

func (b *Builder) removeLocked(kind StageKind) bool {
	kept := b.stages[:0:0]
	for _, stage := range b.stages {
		if stage.Kind() != kind {
			kept = append(kept, stage)
		}
	}
	if len(kept) == len(b.stages) {
		return false
	}
	b.stages = kept
	b.compiled = nil
	return true
}

// Replace removes all the stages of the kind of stage and appends stage,
// atomically with respect to [*Builder.Compiled].
func (b *Builder) Replace(stage Stage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(stage.Kind())
	b.stages = append(b.stages, stage)
	b.compiled = nil
}

// Kinds returns the kinds of the configured stages in insertion order,
// excluding the cache stage.
func (b *Builder) Kinds() []StageKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]StageKind, 0, len(b.stages))
	for _, stage := range b.stages {
		kinds = append(kinds, stage.Kind())
	}
	return kinds
}

// SetCache installs a cache stage backed by store, replacing any
// existing one.
func (b *Builder) SetCache(store CacheStore, config CacheConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = newCacheStage(b.cfg, store, config, b.logger)
	b.compiled = nil
}

// ClearCache removes the cache stage.
func (b *Builder) ClearCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = nil
	b.compiled = nil
}

// Compiled returns the [*CompiledClient] for the current stages,
// compiling it if needed.
func (b *Builder) Compiled() *CompiledClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.compiled == nil {
		b.compiled = b.compileLocked()
	}
	return b.compiled
}

func (b *Builder) compileLocked() *CompiledClient {
	t0 := b.cfg.TimeNow()
	stages := append([]Stage(nil), b.stages...)
	if b.cache != nil {
		stages = append(stages, b.cache)
	}

	var rt http.RoundTripper = &observedTransport{
		txp:           b.txp,
		errClassifier: b.cfg.ErrClassifier,
		logger:        b.logger,
		timeNow:       b.cfg.TimeNow,
	}
	kinds := make([]StageKind, len(stages))
	for idx := len(stages) - 1; idx >= 0; idx-- {
		rt = &stageRoundTripper{stage: stages[idx], next: rt}
		kinds[idx] = stages[idx].Kind()
	}

	b.logger.Debug(
		"pipelineCompiled",
		slog.Any("stages", kinds),
		slog.Time("t0", t0),
		slog.Time("t", b.cfg.TimeNow()),
	)
	return &CompiledClient{kinds: kinds, rt: rt}
}

// CompiledClient is an immutable, fully composed pipeline.
//
// It is safe for concurrent use when the stages and the transport are.
type CompiledClient struct {
	kinds []StageKind
	rt    http.RoundTripper
}

var _ http.RoundTripper = &CompiledClient{}

// Kinds returns the kinds of the composed stages in request order,
// including [KindCache] when a cache is installed.
func (c *CompiledClient) Kinds() []StageKind {
	return append([]StageKind(nil), c.kinds...)
}

// RoundTrip implements [http.RoundTripper].
func (c *CompiledClient) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.rt.RoundTrip(req)
}

// Do sends req through the pipeline.
func (c *CompiledClient) Do(req *http.Request) (*http.Response, error) {
	return c.rt.RoundTrip(req)
}

// Get sends a GET request for uri through the pipeline. The uri may be
// relative to the host bound by a [*HostStage].
func (c *CompiledClient) Get(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
