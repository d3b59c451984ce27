package repository

import (
	"context"
	"encoding/json"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	"CreditPulse/internal/service/cache"
	applogger "CreditPulse/pkg/logger"
	"CreditPulse/pkg/util"
)

// CachedHistory serves metric histories from a cache in front of the store.
// Cache errors fall through to the store.
type CachedHistory struct {
	store domrepo.HistoryStore
	cache cache.BytesCache
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.HistoryStore = (*CachedHistory)(nil)

func NewCachedHistory(store domrepo.HistoryStore, c cache.BytesCache, ttl time.Duration) *CachedHistory {
	return &CachedHistory{store: store, cache: c, ttl: ttl, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (h *CachedHistory) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.l = l
	}
}

func (h *CachedHistory) History(ctx context.Context, ticker string, before time.Time, limit int) ([]models.CreditMetrics, error) {
	key := cache.Key("history", ticker, before.UTC().Format(util.DateLayout), limit)
	if b, ok, err := h.cache.GetBytes(ctx, key); err != nil {
		h.l.Warn("history cache get", applogger.String("key", key), applogger.Error(err))
	} else if ok {
		var out []models.CreditMetrics
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
	}

	out, err := h.store.History(ctx, ticker, before, limit)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := h.cache.SetBytes(ctx, key, b, h.ttl); err != nil {
			h.l.Warn("history cache set", applogger.String("key", key), applogger.Error(err))
		}
	}
	return out, nil
}
