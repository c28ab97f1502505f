package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/query"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

type queryValidator interface {
	Validate(doc map[string]any) (*query.Query, error)
}

type queryExecutor interface {
	Execute(q *query.Query) ([]query.Record, error)
}

type resultCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// QueryService validates and runs query documents, consulting the result
// cache when one is configured.
type QueryService struct {
	validator queryValidator
	executor  queryExecutor
	cache     resultCache
	metrics   *MetricsService
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// QueryServiceConfig tunes query behaviour.
type QueryServiceConfig struct {
	CacheTTL time.Duration
}

// NewQueryService wires the query pipeline. cache and metrics may be nil.
func NewQueryService(validator queryValidator, executor queryExecutor, cache resultCache, metrics *MetricsService, logger *zap.Logger, cfg QueryServiceConfig) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		validator: validator,
		executor:  executor,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cacheTTL:  cfg.CacheTTL,
	}
}

// PerformDocument decodes a JSON or YAML query document and runs it.
func (s *QueryService) PerformDocument(ctx context.Context, data []byte, format query.DocumentFormat) ([]query.Record, error) {
	doc, err := query.DecodeDocument(data, format)
	if err != nil {
		s.metrics.ObserveQuery("", outcomeInvalid, 0, 0)
		return nil, err
	}
	return s.Perform(ctx, doc)
}

// Perform validates doc against the current datasets and returns the result
// rows. Failures return no rows.
func (s *QueryService) Perform(ctx context.Context, doc map[string]any) ([]query.Record, error) {
	start := time.Now()
	execID := uuid.NewString()
	log := s.logger.With(zap.String("execution_id", execID))

	q, err := s.validator.Validate(doc)
	if err != nil {
		s.metrics.ObserveQuery("", classifyQueryError(err), 0, time.Since(start))
		log.Debug("query rejected", zap.Error(err))
		return nil, err
	}
	kind := q.Dataset.Kind
	log = log.With(zap.String("dataset_id", q.Dataset.ID), zap.String("kind", string(kind)))

	key := ""
	if s.cache != nil && s.cache.Enabled() {
		if key, err = QueryKey(q.Dataset.ID, q.Dataset.Generation, doc); err != nil {
			log.Warn("query cache key unavailable", zap.Error(err))
			key = ""
		}
	}
	if key != "" {
		var cached []query.Record
		if hit, cacheErr := s.cache.Get(ctx, key, &cached); cacheErr == nil && hit {
			s.metrics.ObserveQuery(kind, outcomeOK, len(cached), time.Since(start))
			log.Debug("query served from cache", zap.Int("rows", len(cached)))
			return cached, nil
		}
	}

	records, err := s.executor.Execute(q)
	duration := time.Since(start)
	if err != nil {
		s.metrics.ObserveQuery(kind, classifyQueryError(err), 0, duration)
		log.Info("query failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, err
	}
	s.metrics.ObserveQuery(kind, outcomeOK, len(records), duration)
	log.Info("query executed", zap.Int("rows", len(records)), zap.Duration("duration", duration))

	if key != "" {
		_ = s.cache.Set(ctx, key, records, s.cacheTTL)
	}
	return records, nil
}

func classifyQueryError(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrResultTooLarge):
		return outcomeTooLarge
	case errors.Is(err, appErrors.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, appErrors.ErrValidation), errors.Is(err, appErrors.ErrInvalidID):
		return outcomeInvalid
	default:
		return outcomeError
	}
}
