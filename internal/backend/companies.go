package backend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"jobmate/posting-service/internal/cache"
	"jobmate/posting-service/internal/telemetry"
)

const companiesKey = "companies"

// CompanyLister is the part of Client that Companies reads through.
type CompanyLister interface {
	ListCompanies(ctx context.Context) (json.RawMessage, error)
}

// Companies serves the company list from cache, refreshing from the backend
// on a miss. Cache failures are logged and bypassed.
type Companies struct {
	lister CompanyLister
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCompanies(lister CompanyLister, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Companies {
	return &Companies{lister: lister, cache: c, ttl: ttl, logger: logger}
}

func (c *Companies) List(ctx context.Context) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "Companies.List")
	defer span.End()

	cached, err := c.cache.Get(ctx, companiesKey)
	switch {
	case err == nil && json.Valid(cached):
		span.SetAttributes(telemetry.String("cache.result", "hit"))
		return cached, nil
	case err == nil:
		span.SetAttributes(telemetry.String("cache.result", "corrupt"))
		c.logger.Warn("dropping corrupt cached companies")
		if err := c.cache.Delete(ctx, companiesKey); err != nil {
			c.logger.Warn("failed to drop cached companies", zap.Error(err))
		}
	case errors.Is(err, cache.ErrNotFound):
		span.SetAttributes(telemetry.String("cache.result", "miss"))
	default:
		span.SetAttributes(telemetry.String("cache.result", "error"))
		span.RecordError(err)
		c.logger.Warn("cache error for companies", zap.Error(err))
	}

	body, err := c.lister.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, companiesKey, body, c.ttl); err != nil {
		c.logger.Warn("failed to cache companies", zap.Error(err))
	}
	return body, nil
}
