package dto

import "github.com/noah-isme/campus-insight/internal/models"

// GenerateScheduleRequest carries the raw inputs of one scheduler run.
type GenerateScheduleRequest struct {
	Sections []models.SectionRecord `json:"sections"`
	Rooms    []models.RoomRecord    `json:"rooms"`
}

// ScheduleStats summarises a scheduler run.
type ScheduleStats struct {
	Sections    int `json:"sections"`
	Rooms       int `json:"rooms"`
	Scheduled   int `json:"scheduled"`
	Unscheduled int `json:"unscheduled"`
	RoomsUsed   int `json:"roomsUsed"`
}

// GenerateScheduleResponse returns the timetable with the sections that did not fit.
type GenerateScheduleResponse struct {
	RunID       string                 `json:"runId"`
	Assignments []models.Assignment    `json:"assignments"`
	Unscheduled []models.SectionRecord `json:"unscheduled"`
	Stats       ScheduleStats          `json:"stats"`
}
