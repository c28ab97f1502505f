package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/dto"
	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

type datasetStore interface {
	Add(id string, kind models.DatasetKind, rows []models.Row) ([]string, error)
	Remove(id string) (string, error)
	List() []models.DatasetSummary
	Lookup(id string) (*models.Dataset, error)
}

type cacheInvalidator interface {
	InvalidateDataset(ctx context.Context, datasetID string) error
}

// DatasetService manages the dataset registry on behalf of ingestion collaborators.
type DatasetService struct {
	store     datasetStore
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	setupErr  error
}

// NewDatasetService constructs the dataset service. cache and metrics may be nil.
func NewDatasetService(store datasetStore, cache cacheInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *DatasetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DatasetService{store: store, cache: cache, metrics: metrics, validator: validate, logger: logger}
	if err := registerDatasetValidations(svc.validator); err != nil {
		logger.Error("failed to register dataset validations", zap.Error(err))
		svc.setupErr = err
	}
	return svc
}

func registerDatasetValidations(v *validator.Validate) error {
	return v.RegisterValidation("datasetid", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return strings.TrimSpace(id) != "" && !strings.Contains(id, "_")
	})
}

// Add registers a dataset and returns every known id in insertion order.
func (s *DatasetService) Add(ctx context.Context, req dto.AddDatasetRequest) (*dto.AddDatasetResponse, error) {
	if s.setupErr != nil {
		return nil, appErrors.Wrap(s.setupErr, appErrors.ErrInternal.Code, "dataset validation is not available")
	}
	if err := s.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "ID" {
					return nil, appErrors.Wrap(err, appErrors.ErrInvalidID.Code, "dataset id must be non-blank and free of underscores")
				}
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid dataset payload")
	}
	ids, err := s.store.Add(req.ID, req.Kind, req.Rows)
	if err != nil {
		s.logger.Warn("dataset add rejected", zap.String("dataset_id", req.ID), zap.Error(err))
		return nil, err
	}
	s.afterMutation(ctx, req.ID)
	s.logger.Info("dataset added",
		zap.String("dataset_id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.Int("rows", len(req.Rows)),
	)
	return &dto.AddDatasetResponse{IDs: ids}, nil
}

// Remove deletes a dataset by id.
func (s *DatasetService) Remove(ctx context.Context, id string) (*dto.RemoveDatasetResponse, error) {
	removed, err := s.store.Remove(id)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, removed)
	s.logger.Info("dataset removed", zap.String("dataset_id", removed))
	return &dto.RemoveDatasetResponse{ID: removed}, nil
}

// List summarises the registered datasets.
func (s *DatasetService) List(ctx context.Context) []models.DatasetSummary {
	return s.store.List()
}

// Lookup returns a private copy of the current snapshot of a dataset.
func (s *DatasetService) Lookup(id string) (*models.Dataset, error) {
	dataset, err := s.store.Lookup(id)
	if err != nil {
		return nil, err
	}
	return dataset.Clone(), nil
}

func (s *DatasetService) afterMutation(ctx context.Context, id string) {
	s.metrics.SetDatasets(s.store.List())
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDataset(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate cached results", zap.String("dataset_id", id), zap.Error(err))
	}
}
