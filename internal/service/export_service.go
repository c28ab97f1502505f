package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/dto"
	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
	"github.com/noah-isme/campus-insight/pkg/export"
	"github.com/noah-isme/campus-insight/pkg/jobs"
)

const exportJobType = "export"

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table, title string) ([]byte, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	ResultTTL  time.Duration
	MaxRetries int
}

// ExportService renders tabular results to CSV or PDF files, either inline
// or through the background queue.
type ExportService struct {
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	queue     jobDispatcher
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig

	mu   sync.RWMutex
	jobs map[string]*models.ExportJob
}

// NewExportService constructs an ExportService. Renderers default to the
// package exporters; the queue can be attached later with SetQueue.
func NewExportService(storage fileStorage, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		jobs:      make(map[string]*models.ExportJob),
	}
}

// SetQueue attaches the dispatcher used by Submit. The queue's handler is
// usually this service's Handle method, hence the two-step wiring.
func (s *ExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Render validates the request and returns the encoded file contents.
func (s *ExportService) Render(req dto.ExportRequest) ([]byte, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid export request")
	}
	table := export.TableFromRecords(req.Columns, req.Records)
	var (
		payload []byte
		err     error
	)
	switch req.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(table)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(table, req.Title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", req.Format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to render export")
	}
	return payload, nil
}

// Save renders the request and stores it, returning the finished job record.
func (s *ExportService) Save(ctx context.Context, req dto.ExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid export request")
	}
	job := s.newJob(req)
	if err := s.generate(job, req); err != nil {
		s.fail(job.ID, err)
		return nil, err
	}
	return s.Status(job.ID)
}

// Submit queues the request for background rendering.
func (s *ExportService) Submit(ctx context.Context, req dto.ExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid export request")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue is not configured")
	}
	job := s.newJob(req)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: exportJobType, Payload: req}); err != nil {
		s.fail(job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to enqueue export")
	}
	s.logger.Info("export queued", zap.String("job_id", job.ID), zap.String("format", string(req.Format)))
	return s.Status(job.ID)
}

// Status returns the current state of an export job.
func (s *ExportService) Status(id string) (*dto.ExportJobResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("export job %q not found", id))
	}
	return &dto.ExportJobResponse{
		ID:         job.ID,
		Status:     job.Status,
		Format:     job.Format,
		Path:       job.RelativePath,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}, nil
}

// Wait polls until the job reaches a terminal state or ctx ends.
func (s *ExportService) Wait(ctx context.Context, id string, interval time.Duration) (*dto.ExportJobResponse, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := s.Status(id)
		if err != nil {
			return nil, err
		}
		if status.Status == models.ExportStatusFinished || status.Status == models.ExportStatusFailed {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handle processes a queued export job. A job whose request fails
// validation is marked failed and not retried.
func (s *ExportService) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.ExportRequest)
	if !ok {
		return fmt.Errorf("export job %s carries %T, not an export request", job.ID, job.Payload)
	}
	s.update(job.ID, func(j *models.ExportJob) {
		j.Status = models.ExportStatusProcessing
	})
	s.mu.RLock()
	record, exists := s.jobs[job.ID]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("export job %s is not tracked", job.ID)
	}

	err := s.generate(record, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, appErrors.ErrValidation):
		s.fail(job.ID, err)
		s.logger.Warn("export rejected", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	case job.Attempt >= s.cfg.MaxRetries:
		s.fail(job.ID, err)
		s.logger.Warn("export failed", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	msg := err.Error()
	s.update(job.ID, func(j *models.ExportJob) {
		j.Status = models.ExportStatusQueued
		j.Error = msg
	})
	return err
}

// Open returns a handle to a stored export file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) newJob(req dto.ExportRequest) *models.ExportJob {
	job := &models.ExportJob{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Format:    req.Format,
		Status:    models.ExportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

func (s *ExportService) generate(job *models.ExportJob, req dto.ExportRequest) error {
	payload, err := s.Render(req)
	if err != nil {
		return err
	}
	relPath, err := s.storage.Save(buildFilename(job), payload)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to store export")
	}
	s.update(job.ID, func(j *models.ExportJob) {
		now := time.Now().UTC()
		j.Status = models.ExportStatusFinished
		j.RelativePath = relPath
		j.Error = ""
		j.FinishedAt = &now
	})
	s.logger.Info("export stored", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("bytes", len(payload)))
	return nil
}

func (s *ExportService) fail(id string, err error) {
	msg := err.Error()
	s.update(id, func(j *models.ExportJob) {
		now := time.Now().UTC()
		j.Status = models.ExportStatusFailed
		j.Error = msg
		j.FinishedAt = &now
	})
}

func (s *ExportService) update(id string, fn func(*models.ExportJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}

// ScheduleExportRequest lays a timetable out as an export request.
func ScheduleExportRequest(title string, format models.ExportFormat, assignments []models.Assignment) dto.ExportRequest {
	columns := []string{"room", "seats", "dept", "id", "uuid", "enrollment", "timeslot"}
	records := make([]map[string]any, len(assignments))
	for i, a := range assignments {
		records[i] = map[string]any{
			"room":       a.Room.Name(),
			"seats":      a.Room.Seats,
			"dept":       a.Section.Dept,
			"id":         a.Section.ID,
			"uuid":       a.Section.UUID,
			"enrollment": a.Section.Enrollment(),
			"timeslot":   a.Timeslot,
		}
	}
	return dto.ExportRequest{Title: title, Format: format, Columns: columns, Records: records}
}

func buildFilename(job *models.ExportJob) string {
	timestamp := job.CreatedAt.Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", sanitizeFilename(job.Title), timestamp, job.ID[:8], job.Format)
}

func sanitizeFilename(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "export"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := strings.ToLower(replacer.Replace(strings.TrimSpace(raw)))
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
