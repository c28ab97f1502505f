package dto

import "github.com/noah-isme/campus-insight/internal/models"

// AddDatasetRequest registers a named dataset with already-decoded rows.
type AddDatasetRequest struct {
	ID   string             `json:"id" validate:"required,datasetid"`
	Kind models.DatasetKind `json:"kind" validate:"required,oneof=courses rooms"`
	Rows []models.Row       `json:"rows"`
}

// AddDatasetResponse lists every registered dataset id in insertion order.
type AddDatasetResponse struct {
	IDs []string `json:"ids"`
}

// RemoveDatasetResponse echoes the removed id.
type RemoveDatasetResponse struct {
	ID string `json:"id"`
}
