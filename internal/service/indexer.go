package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arturoeanton/go-star-search/internal/budget"
	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/observability"
	"github.com/arturoeanton/go-star-search/internal/port"
	"go.opentelemetry.io/otel/trace"
)

// Indexer pulls one page of starred items at a time, embeds them in batches
// and writes each batch to the vector store as soon as it is embedded.
type Indexer struct {
	source      port.SourceProvider
	embedder    port.EmbeddingProvider
	store       port.VectorStore
	settings    port.SettingsStore
	notifier    port.Notifier
	tokenBudget int

	running atomic.Bool

	mu       sync.RWMutex
	current  domain.IndexSettings
	state    domain.RunState
	lastRun  *domain.RunResult
	lastErr  string
	lastSeen int // provider total from the latest run
}

// NewIndexer wires an indexer and loads the persisted settings. A nil notifier
// discards progress; a non-positive tokenBudget selects the default.
func NewIndexer(
	ctx context.Context,
	source port.SourceProvider,
	embedder port.EmbeddingProvider,
	store port.VectorStore,
	settings port.SettingsStore,
	notifier port.Notifier,
	tokenBudget int,
) (*Indexer, error) {
	if notifier == nil {
		notifier = port.NopNotifier{}
	}
	if tokenBudget <= 0 {
		tokenBudget = budget.DefaultTokenBudget
	}

	ix := &Indexer{
		source:      source,
		embedder:    embedder,
		store:       store,
		settings:    settings,
		notifier:    notifier,
		tokenBudget: tokenBudget,
		current:     domain.DefaultIndexSettings(),
		state:       domain.StateIdle,
	}

	if settings != nil {
		loaded, ok, err := settings.LoadSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if ok {
			ix.current = loaded.Clamp()
		}
	}
	return ix, nil
}

// Run indexes one page and blocks until it completes. It returns
// port.ErrAlreadyRunning if another run holds the guard.
func (ix *Indexer) Run(ctx context.Context, page int) (domain.RunResult, error) {
	if !ix.running.CompareAndSwap(false, true) {
		return domain.RunResult{}, port.ErrAlreadyRunning
	}
	defer ix.running.Store(false)
	return ix.run(ctx, page)
}

// Start takes the run guard and indexes page in the background. The run
// outlives ctx's cancellation but keeps its values.
func (ix *Indexer) Start(ctx context.Context, page int) error {
	if !ix.running.CompareAndSwap(false, true) {
		return port.ErrAlreadyRunning
	}
	go func() {
		defer ix.running.Store(false)
		ix.run(context.WithoutCancel(ctx), page)
	}()
	return nil
}

// Reindex clears the store and indexes page 1 under the same guard as Run.
func (ix *Indexer) Reindex(ctx context.Context) (domain.RunResult, error) {
	if !ix.running.CompareAndSwap(false, true) {
		return domain.RunResult{}, port.ErrAlreadyRunning
	}
	defer ix.running.Store(false)
	return ix.reindex(ctx)
}

// StartReindex is the background form of Reindex.
func (ix *Indexer) StartReindex(ctx context.Context) error {
	if !ix.running.CompareAndSwap(false, true) {
		return port.ErrAlreadyRunning
	}
	go func() {
		defer ix.running.Store(false)
		ix.reindex(context.WithoutCancel(ctx))
	}()
	return nil
}

// Running reports whether a run currently holds the guard.
func (ix *Indexer) Running() bool {
	return ix.running.Load()
}

func (ix *Indexer) reindex(ctx context.Context) (domain.RunResult, error) {
	slog.Info("clearing index before reindex")
	if err := ix.store.Clear(ctx); err != nil {
		err = &port.RunError{Page: 1, Phase: domain.StatePaging, Err: fmt.Errorf("%w: clear: %w", port.ErrStorage, err)}
		ix.recordFailure(err)
		ix.notify(func(n port.Notifier) { n.Failed(1, err) })
		return domain.RunResult{Page: 1}, err
	}
	return ix.run(ctx, 1)
}

func (ix *Indexer) run(ctx context.Context, page int) (domain.RunResult, error) {
	if page < 1 {
		page = 1
	}
	settings := ix.Settings()

	ctx, span := observability.StartRunSpan(ctx, page)
	defer span.End()

	res := domain.RunResult{Page: page, StartedAt: time.Now()}
	ix.setState(domain.StatePaging)
	ix.notify(func(n port.Notifier) { n.Started(page) })
	slog.Info("index run started",
		"page", page,
		"page_size", settings.PageSize,
		"batch_size", settings.BatchSize,
		"model", ix.embedder.ModelName(),
	)

	fail := func(phase domain.RunState, err error) (domain.RunResult, error) {
		runErr := &port.RunError{Page: page, Phase: phase, Err: err}
		observability.RecordError(span, runErr)
		ix.recordFailure(runErr)
		ix.notify(func(n port.Notifier) { n.Failed(page, runErr) })
		res.CompletedAt = time.Now()
		return res, runErr
	}

	if page == 1 {
		count, err := ix.store.Count(ctx)
		if err != nil {
			return fail(domain.StatePaging, fmt.Errorf("%w: count: %w", port.ErrStorage, err))
		}
		if count > 0 {
			total, err := ix.source.TotalStarredCount(ctx)
			if err != nil {
				return fail(domain.StatePaging, fmt.Errorf("total starred: %w", err))
			}
			res.ShortCircuited = true
			return ix.finish(span, res, count, total, settings)
		}
	}

	total, err := ix.source.TotalStarredCount(ctx)
	if err != nil {
		return fail(domain.StatePaging, fmt.Errorf("total starred: %w", err))
	}
	items, err := ix.source.ListStarred(ctx, page, settings.PageSize)
	if err != nil {
		return fail(domain.StatePaging, fmt.Errorf("list starred: %w", err))
	}
	res.Total = total
	res.Fetched = len(items)

	for i := range items {
		ix.progress(domain.ProgressEvent{
			Phase:   domain.PhaseFetching,
			Current: i + 1,
			Total:   len(items),
			Label:   items[i].Name,
			Detail:  fmt.Sprintf("Processing %d of %d in current page", i+1, len(items)),
		})
		content, err := ix.source.GetContent(ctx, items[i])
		if err != nil {
			itemErr := &port.ItemError{ItemID: items[i].ID, Name: items[i].Name, Stage: port.StageContent, Err: err}
			slog.Warn("content fetch failed, indexing metadata only", "error", itemErr)
			res.ContentFailures++
			content = ""
		}
		items[i].Content = content
	}

	ix.setState(domain.StateEmbedding)
	batches := partition(items, settings.BatchSize)
	for b, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fail(domain.StateEmbedding, err)
		}
		failed, err := ix.indexBatch(ctx, b, len(batches), batch, settings.MaxRetries)
		res.EmbeddingFailures += failed
		if err != nil {
			return fail(domain.StateEmbedding, err)
		}

		count, err := ix.store.Count(ctx)
		if err != nil {
			return fail(domain.StateEmbedding, fmt.Errorf("%w: count: %w", port.ErrStorage, err))
		}
		ix.progress(domain.ProgressEvent{
			Phase:   domain.PhaseEmbedding,
			Current: count,
			Total:   total,
			Label:   fmt.Sprintf("Batch %d of %d stored", b+1, len(batches)),
			Detail:  fmt.Sprintf("Indexed %d of %d starred repositories", count, total),
		})
	}

	indexed, err := ix.store.Count(ctx)
	if err != nil {
		return fail(domain.StateEmbedding, fmt.Errorf("%w: count: %w", port.ErrStorage, err))
	}
	return ix.finish(span, res, indexed, total, settings)
}

func (ix *Indexer) finish(span trace.Span, res domain.RunResult, indexed, total int, settings domain.IndexSettings) (domain.RunResult, error) {
	res.Indexed = indexed
	res.Total = total
	res.NextPage = domain.ContinuationPage(indexed, total, settings.PageSize)
	res.CompletedAt = time.Now()

	observability.RecordRunResult(span, res.Indexed, res.Total, res.ContentFailures, res.EmbeddingFailures)

	ix.mu.Lock()
	ix.state = domain.StateIdle
	ix.lastRun = &res
	ix.lastErr = ""
	ix.lastSeen = total
	ix.mu.Unlock()

	slog.Info("index run finished",
		"page", res.Page,
		"indexed", res.Indexed,
		"total", res.Total,
		"next_page", res.NextPage,
		"content_failures", res.ContentFailures,
		"embedding_failures", res.EmbeddingFailures,
		"short_circuited", res.ShortCircuited,
		"duration", res.CompletedAt.Sub(res.StartedAt),
	)
	ix.notify(func(n port.Notifier) { n.Finished(res) })
	return res, nil
}

// indexBatch embeds and stores one batch. It returns the number of items
// stored without an embedding, and an error only when the run must stop.
func (ix *Indexer) indexBatch(ctx context.Context, index, count int, batch []domain.Item, maxRetries int) (int, error) {
	ctx, span := observability.StartBatchSpan(ctx, index+1, len(batch))
	defer span.End()

	ix.progress(domain.ProgressEvent{
		Phase:   domain.PhaseEmbedding,
		Current: index + 1,
		Total:   count,
		Label:   fmt.Sprintf("Embedding batch %d of %d", index+1, count),
		Detail:  fmt.Sprintf("%d repositories", len(batch)),
	})

	records := make([]domain.Record, len(batch))
	docs := make([]string, len(batch))
	for i, it := range batch {
		records[i].Item = it
		docs[i] = budget.Document(it, ix.tokenBudget)
	}

	failed := 0
	vectors, err := ix.embedBatch(ctx, docs)
	switch {
	case err == nil:
		for i := range records {
			records[i].Embedding = vectors[i]
		}
	case errors.Is(err, port.ErrProviderAuth), errors.Is(err, port.ErrRateOrNetwork):
		observability.RecordError(span, err)
		return 0, fmt.Errorf("embed batch: %w", err)
	default:
		slog.Warn("batch embedding failed, embedding one by one", "batch", index+1, "error", err)
		for i := range records {
			vec, err := ix.embedWithRetry(ctx, records[i].Item, maxRetries)
			if err != nil {
				if errors.Is(err, port.ErrProviderAuth) {
					observability.RecordError(span, err)
					return failed, err
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return failed, ctxErr
				}
				slog.Warn("embedding failed, storing without vector", "error", err)
				failed++
				continue
			}
			records[i].Embedding = vec
		}
	}

	if err := ix.store.Upsert(ctx, records); err != nil {
		err = fmt.Errorf("%w: %w", port.ErrStorage, err)
		observability.RecordError(span, err)
		return failed, err
	}
	return failed, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, docs []string) ([][]float32, error) {
	vectors, err := ix.embedder.EmbedBatch(ctx, docs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(docs))
	}
	return vectors, nil
}

// embedWithRetry embeds a single item, shrinking its token budget after each
// length rejection. Any other error ends the attempts immediately.
func (ix *Indexer) embedWithRetry(ctx context.Context, item domain.Item, maxRetries int) ([]float32, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	tokens := ix.tokenBudget
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		vec, err := ix.embedder.EmbedOne(ctx, budget.Document(item, tokens))
		if err == nil {
			return vec, nil
		}
		if !errors.Is(err, port.ErrLengthExceeded) {
			return nil, &port.ItemError{ItemID: item.ID, Name: item.Name, Stage: port.StageEmbedding, Err: err}
		}
		lastErr = err
		next := budget.Shrink(tokens)
		slog.Debug("document over context length, shrinking",
			"item", item.Name, "attempt", attempt, "budget", tokens, "next_budget", next)
		tokens = next
	}
	return nil, &port.ItemError{
		ItemID: item.ID,
		Name:   item.Name,
		Stage:  port.StageEmbedding,
		Err:    fmt.Errorf("gave up after %d attempts: %w", maxRetries, lastErr),
	}
}

// Status reports the run state and store counts. The provider total is best
// effort: when the source is unreachable the last known total is used.
func (ix *Indexer) Status(ctx context.Context) (domain.IndexStatus, error) {
	ix.mu.RLock()
	st := domain.IndexStatus{
		State:     ix.state,
		Settings:  ix.current,
		LastError: ix.lastErr,
	}
	if ix.lastRun != nil {
		last := *ix.lastRun
		st.LastRun = &last
	}
	st.Total = ix.lastSeen
	ix.mu.RUnlock()

	indexed, err := ix.store.Count(ctx)
	if err != nil {
		return st, fmt.Errorf("%w: count: %w", port.ErrStorage, err)
	}
	st.Indexed = indexed

	if total, err := ix.source.TotalStarredCount(ctx); err != nil {
		slog.Warn("total starred count unavailable", "error", err)
	} else {
		st.Total = total
		ix.mu.Lock()
		ix.lastSeen = total
		ix.mu.Unlock()
	}
	st.NextPage = domain.ContinuationPage(st.Indexed, st.Total, st.Settings.PageSize)
	return st, nil
}

// Settings returns the settings the next run will use.
func (ix *Indexer) Settings() domain.IndexSettings {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.current
}

// UpdateSettings merges patch into the current settings, persists the result
// and makes it visible to the next run. A run in flight keeps its snapshot.
func (ix *Indexer) UpdateSettings(ctx context.Context, patch map[string]any) (domain.IndexSettings, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := ix.current.Apply(patch)
	if ix.settings != nil {
		if err := ix.settings.SaveSettings(ctx, next); err != nil {
			return ix.current, fmt.Errorf("save settings: %w", err)
		}
	}
	ix.current = next
	slog.Info("index settings updated",
		"batch_size", next.BatchSize, "max_retries", next.MaxRetries, "page_size", next.PageSize)
	return next, nil
}

func (ix *Indexer) setState(s domain.RunState) {
	ix.mu.Lock()
	ix.state = s
	ix.mu.Unlock()
}

func (ix *Indexer) recordFailure(err error) {
	slog.Error("index run failed", "error", err)
	ix.mu.Lock()
	ix.state = domain.StateFailed
	ix.lastErr = err.Error()
	ix.mu.Unlock()
}

func (ix *Indexer) progress(ev domain.ProgressEvent) {
	ix.notify(func(n port.Notifier) { n.Progress(ev) })
}

// notify delivers one notification. A panicking listener is logged and
// otherwise ignored.
func (ix *Indexer) notify(fn func(port.Notifier)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("progress listener panicked", "panic", r)
		}
	}()
	fn(ix.notifier)
}

func partition(items []domain.Item, size int) [][]domain.Item {
	if size < 1 {
		size = 1
	}
	var batches [][]domain.Item
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}
