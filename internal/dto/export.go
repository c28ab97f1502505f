package dto

import (
	"time"

	"github.com/noah-isme/campus-insight/internal/models"
)

// ExportRequest asks for a tabular result to be rendered to a file.
type ExportRequest struct {
	Title   string              `json:"title" validate:"required,max=120"`
	Format  models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Columns []string            `json:"columns" validate:"required,min=1,dive,required"`
	Records []map[string]any    `json:"records"`
}

// ExportJobResponse reports the state of an export job.
type ExportJobResponse struct {
	ID         string              `json:"id"`
	Status     models.ExportStatus `json:"status"`
	Format     models.ExportFormat `json:"format"`
	Path       string              `json:"path,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}
