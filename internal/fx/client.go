package fx

import (
	"context"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// DefaultConcurrency bounds parallel provider calls in BatchRates.
const DefaultConcurrency = 8

// ClientConfig configures a Client.
type ClientConfig struct {
	// Concurrency bounds parallel lookups in BatchRates. Zero means DefaultConcurrency.
	Concurrency int
	// Store optionally persists exact-date rates across runs.
	Store Store
}

// RateRequest is one lookup in a batch.
type RateRequest struct {
	Date time.Time
	From string
	To   string
}

// Key returns the cache key of the request.
func (r RateRequest) Key() string {
	return Key(r.Date, r.From, r.To)
}

// Client resolves exchange rates through a shared Cache.
type Client struct {
	provider    Provider
	cache       *Cache
	store       Store
	group       singleflight.Group
	concurrency int
	logger      logger.Logger
}

// NewClient creates a client over provider and cache. A nil cache gets a
// fresh one.
func NewClient(provider Provider, cache *Cache, config ClientConfig, log logger.Logger) *Client {
	if cache == nil {
		cache = NewCache()
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Client{
		provider:    provider,
		cache:       cache,
		store:       config.Store,
		concurrency: concurrency,
		logger:      logger.OrGlobal(log).WithComponent("fx"),
	}
}

// Cache returns the client's cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Rate resolves the rate converting from into to on date. Identical
// currencies short-circuit to 1. Otherwise the cache, the store, the
// exact-date quote and the latest quote are tried in that order.
func (c *Client) Rate(ctx context.Context, date time.Time, from, to string) (models.FXRate, error) {
	from, to = strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))
	date = models.CalendarDate(date)

	if from == to {
		return models.FXRate{
			Date:           date,
			EffectiveDate:  date,
			SourceCurrency: from,
			TargetCurrency: to,
			Rate:           1,
			Source:         models.RateSourceNoConversion,
		}, nil
	}

	key := Key(date, from, to)
	if r, ok := c.cache.Get(key); ok {
		return r, nil
	}

	if err := ctx.Err(); err != nil {
		return models.FXRate{}, err
	}

	// Every caller waiting on key shares this lookup; one caller's
	// cancellation must not fail the others. Provider timeouts bound it.
	sharedCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if r, ok := c.cache.Get(key); ok {
			return r, nil
		}
		r, err := c.resolve(sharedCtx, key, date, from, to)
		if err != nil {
			return models.FXRate{}, err
		}
		return c.cache.SetIfAbsent(key, r), nil
	})

	select {
	case <-ctx.Done():
		return models.FXRate{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.WithField("key", key).Debug("Shared in-flight rate lookup")
		}
		if res.Err != nil {
			return models.FXRate{}, res.Err
		}
		return res.Val.(models.FXRate), nil
	}
}

func (c *Client) resolve(ctx context.Context, key string, date time.Time, from, to string) (models.FXRate, error) {
	log := c.logger.WithFields(logger.Fields{"date": date.Format(models.DateLayout), "from": from, "to": to})

	if c.store != nil {
		r, ok, err := c.store.Get(ctx, key)
		if err != nil {
			log.WithError(err).Warn("Rate store lookup failed")
		} else if ok {
			return r, nil
		}
	}

	rate := models.FXRate{Date: date, SourceCurrency: from, TargetCurrency: to}

	q, exactErr := c.provider.Rate(ctx, date, from, to)
	if exactErr == nil {
		rate.EffectiveDate, rate.Rate, rate.Source = models.CalendarDate(q.Date), q.Rate, models.RateSourceExactDate
		c.persist(ctx, log, rate)
		return rate, nil
	}
	if ctx.Err() != nil {
		return models.FXRate{}, ctx.Err()
	}
	log.WithError(exactErr).Debug("Exact-date rate unavailable, trying latest")

	q, latestErr := c.provider.Latest(ctx, from, to)
	if latestErr == nil {
		rate.EffectiveDate, rate.Rate, rate.Source = models.CalendarDate(q.Date), q.Rate, models.RateSourceLatest
		return rate, nil
	}
	if ctx.Err() != nil {
		return models.FXRate{}, ctx.Err()
	}

	return models.FXRate{}, errors.RateUnavailable(date.Format(models.DateLayout), from, to,
		multierr.Combine(exactErr, latestErr))
}

// persist writes historical quotes to the store. Fallback quotes are not
// persisted because they depend on when they were fetched.
func (c *Client) persist(ctx context.Context, log logger.Logger, rate models.FXRate) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(ctx, rate); err != nil {
		log.WithError(err).Warn("Failed to persist rate")
	}
}

// BatchRates resolves the distinct keys among requests concurrently,
// leaving the cache warm. Rates come back in first-occurrence order of
// their keys; keys that could not be resolved are omitted and their
// errors combined into the returned error.
func (c *Client) BatchRates(ctx context.Context, requests []RateRequest) ([]models.FXRate, error) {
	var unique []RateRequest
	seen := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		r.From, r.To = strings.ToUpper(strings.TrimSpace(r.From)), strings.ToUpper(strings.TrimSpace(r.To))
		r.Date = models.CalendarDate(r.Date)
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}

	rates := make([]models.FXRate, len(unique))
	errs := make([]error, len(unique))

	p := pool.New().WithMaxGoroutines(c.concurrency)
	for i, r := range unique {
		i, r := i, r
		p.Go(func() {
			rates[i], errs[i] = c.Rate(ctx, r.Date, r.From, r.To)
		})
	}
	p.Wait()

	resolved := make([]models.FXRate, 0, len(unique))
	for i := range unique {
		if errs[i] == nil {
			resolved = append(resolved, rates[i])
		}
	}

	c.logger.WithFields(logger.Fields{
		"requested": len(requests),
		"unique":    len(unique),
		"resolved":  len(resolved),
		"cached":    c.cache.Len(),
	}).Debug("Batch rate lookup finished")

	return resolved, multierr.Combine(errs...)
}
