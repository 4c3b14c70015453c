package reputation

import (
	"context"
	"strconv"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/cachestore"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/realtime"
	"go.uber.org/zap"
)

const cacheNamespace = "reputation"

// Reader is the read side of the ledger used for enrichment.
type Reader interface {
	GetReputation(ctx context.Context, authorHash string) (int, error)
}

// CachedReader fronts a Reader with a cachestore.Store.
type CachedReader struct {
	source Reader
	store  cachestore.Store
	logger *zap.Logger
}

var _ Reader = (*CachedReader)(nil)

// NewCachedReader wraps source. A nil store disables caching.
func NewCachedReader(source Reader, store cachestore.Store, logger *zap.Logger) *CachedReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedReader{source: source, store: store, logger: logger}
}

// GetReputation serves from cache when possible. Cache errors fall through to the source.
func (r *CachedReader) GetReputation(ctx context.Context, authorHash string) (int, error) {
	if r.store == nil {
		return r.source.GetReputation(ctx, authorHash)
	}
	cached, ok, err := r.store.Get(ctx, cacheNamespace, authorHash)
	if err != nil {
		r.logger.Warn("reputation cache read failed", zap.String("author_hash", authorHash), zap.Error(err))
	}
	if ok {
		if value, parseErr := strconv.Atoi(cached); parseErr == nil {
			cacheLookupCount.WithLabelValues("hit").Inc()
			return value, nil
		}
	}
	cacheLookupCount.WithLabelValues("miss").Inc()

	value, err := r.source.GetReputation(ctx, authorHash)
	if err != nil {
		return 0, err
	}
	if err := r.store.Set(ctx, cacheNamespace, authorHash, strconv.Itoa(value)); err != nil {
		r.logger.Warn("reputation cache write failed", zap.String("author_hash", authorHash), zap.Error(err))
	}
	return value, nil
}

// Invalidate drops the cached score for authorHash.
func (r *CachedReader) Invalidate(ctx context.Context, authorHash string) error {
	if r.store == nil {
		return nil
	}
	return r.store.Purge(ctx, cacheNamespace, authorHash)
}

// Follow refreshes cache entries as reputation rows change. Events that carry
// the new score overwrite the entry; others purge it. It returns when ctx is
// done or events is closed.
func (r *CachedReader) Follow(ctx context.Context, events <-chan realtime.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.apply(ctx, event)
		}
	}
}

func (r *CachedReader) apply(ctx context.Context, event realtime.ChangeEvent) {
	authorHash, score, ok := ScoreFromEvent(event)
	if authorHash == "" {
		return
	}
	if ok && r.store != nil {
		err := r.store.Set(ctx, cacheNamespace, authorHash, strconv.Itoa(score))
		if err == nil {
			return
		}
		r.logger.Warn("reputation cache write failed", zap.String("author_hash", authorHash), zap.Error(err))
	}
	if err := r.Invalidate(ctx, authorHash); err != nil {
		r.logger.Warn("reputation cache purge failed", zap.String("author_hash", authorHash), zap.Error(err))
	}
}

// ScoreFromEvent extracts the author hash and new score from a reputation
// change event. ok is false when the event carries no score, as for deletes.
func ScoreFromEvent(event realtime.ChangeEvent) (authorHash string, score int, ok bool) {
	if event.Table != (Record{}).TableName() {
		return "", 0, false
	}
	authorHash, _ = event.New["author_hash"].(string)
	if authorHash == "" {
		authorHash, _ = event.Old["author_hash"].(string)
		return authorHash, 0, false
	}
	switch value := event.New["reputation"].(type) {
	case int:
		return authorHash, value, true
	case int64:
		return authorHash, int(value), true
	case float64:
		return authorHash, int(value), true
	default:
		return authorHash, 0, false
	}
}
