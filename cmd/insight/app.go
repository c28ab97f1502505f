package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/dto"
	"github.com/noah-isme/campus-insight/internal/models"
	"github.com/noah-isme/campus-insight/internal/query"
	"github.com/noah-isme/campus-insight/internal/repository"
	"github.com/noah-isme/campus-insight/internal/service"
	"github.com/noah-isme/campus-insight/pkg/cache"
	"github.com/noah-isme/campus-insight/pkg/config"
	"github.com/noah-isme/campus-insight/pkg/jobs"
	"github.com/noah-isme/campus-insight/pkg/logger"
	"github.com/noah-isme/campus-insight/pkg/storage"
)

// app holds the wired services for one CLI invocation.
type app struct {
	logger    *zap.Logger
	metrics   *service.MetricsService
	datasets  *service.DatasetService
	queries   *service.QueryService
	schedules *service.ScheduleService
	exports   *service.ExportService
	queue     *jobs.Queue
	cacheRepo *repository.CacheRepository
}

func newApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()
	store := repository.NewDatasetRepository()

	var client redis.UniversalClient
	if cfg.Query.CacheEnabled {
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("query cache disabled, redis unavailable", zap.Error(err))
		} else {
			client = rdb
		}
	}
	cacheLog := logger.Component(logr, "cache")
	cacheRepo := repository.NewCacheRepository(client, cacheLog)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Query.CacheTTL, cacheLog, client != nil)

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, err
	}
	exports := service.NewExportService(fileStore, service.ExportConfig{
		ResultTTL:  cfg.Exports.ResultTTL,
		MaxRetries: cfg.Exports.WorkerRetries,
	}, validate, logger.Component(logr, "exports"), nil, nil)
	queue := jobs.NewQueue("exports", exports.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logger.Component(logr, "jobs"),
	})
	exports.SetQueue(queue)
	queue.Start(ctx)

	return &app{
		logger:    logr,
		metrics:   metrics,
		datasets:  service.NewDatasetService(store, cacheSvc, metrics, validate, logger.Component(logr, "datasets")),
		queries:   service.NewQueryService(query.NewValidator(store), query.NewExecutor(cfg.Query.MaxResults), cacheSvc, metrics, logger.Component(logr, "query"), service.QueryServiceConfig{CacheTTL: cfg.Query.CacheTTL}),
		schedules: service.NewScheduleService(metrics, logger.Component(logr, "schedule")),
		exports:   exports,
		queue:     queue,
		cacheRepo: cacheRepo,
	}, nil
}

func (a *app) Close() {
	a.queue.Stop()
	if err := a.cacheRepo.Close(); err != nil {
		a.logger.Warn("failed to close cache", zap.Error(err))
	}
}

// datasetSpec is one -dataset flag value: id:kind:path.
type datasetSpec struct {
	ID   string
	Kind models.DatasetKind
	Path string
}

type datasetFlags []datasetSpec

func (d *datasetFlags) String() string {
	parts := make([]string, len(*d))
	for i, spec := range *d {
		parts[i] = fmt.Sprintf("%s:%s:%s", spec.ID, spec.Kind, spec.Path)
	}
	return strings.Join(parts, ",")
}

func (d *datasetFlags) Set(raw string) error {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("dataset must be id:kind:path, got %q", raw)
	}
	kind, err := models.ParseDatasetKind(parts[1])
	if err != nil {
		return err
	}
	*d = append(*d, datasetSpec{ID: parts[0], Kind: kind, Path: parts[2]})
	return nil
}

// loadDatasets reads each JSON row file and registers it.
func (a *app) loadDatasets(ctx context.Context, specs []datasetSpec) error {
	for _, spec := range specs {
		rows, err := readRows(spec.Path, spec.Kind)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", spec.ID, err)
		}
		if _, err := a.datasets.Add(ctx, dto.AddDatasetRequest{ID: spec.ID, Kind: spec.Kind, Rows: rows}); err != nil {
			return err
		}
	}
	return nil
}

func readRows(path string, kind models.DatasetKind) ([]models.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	rows := make([]models.Row, 0, len(raw))
	for i, obj := range raw {
		row, err := models.NewRow(kind, obj)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// runQueryFile evaluates a JSON or YAML query document and returns its
// column keys alongside the result rows.
func (a *app) runQueryFile(ctx context.Context, path string) ([]string, []query.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := query.DecodeDocument(data, query.FormatFromPath(path))
	if err != nil {
		return nil, nil, err
	}
	records, err := a.queries.Perform(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return query.ColumnKeys(doc), records, nil
}
