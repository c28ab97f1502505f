package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/dto"
	"github.com/noah-isme/campus-insight/internal/models"
)

// ScheduleService turns section and room lists into a timetable.
type ScheduleService struct {
	metrics *MetricsService
	logger  *zap.Logger
}

// NewScheduleService constructs the schedule service.
func NewScheduleService(metrics *MetricsService, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{metrics: metrics, logger: logger}
}

// Generate schedules the request and reports what could not be placed. It
// never fails; infeasible sections are listed as unscheduled.
func (s *ScheduleService) Generate(ctx context.Context, req dto.GenerateScheduleRequest) *dto.GenerateScheduleResponse {
	start := time.Now()
	assignments, unscheduled := schedule(req.Sections, req.Rooms)

	rooms := make(map[string]struct{})
	for _, a := range assignments {
		rooms[a.Room.Name()] = struct{}{}
	}

	resp := &dto.GenerateScheduleResponse{
		RunID:       uuid.NewString(),
		Assignments: assignments,
		Unscheduled: unscheduled,
		Stats: dto.ScheduleStats{
			Sections:    len(req.Sections),
			Rooms:       len(req.Rooms),
			Scheduled:   len(assignments),
			Unscheduled: len(unscheduled),
			RoomsUsed:   len(rooms),
		},
	}
	s.metrics.ObserveSchedule(resp.Stats.Scheduled, resp.Stats.Unscheduled)
	s.logger.Info("schedule generated",
		zap.String("run_id", resp.RunID),
		zap.Int("sections", resp.Stats.Sections),
		zap.Int("scheduled", resp.Stats.Scheduled),
		zap.Int("unscheduled", resp.Stats.Unscheduled),
		zap.Int("rooms_used", resp.Stats.RoomsUsed),
		zap.Duration("duration", time.Since(start)),
	)
	return resp
}

// Schedule greedily assigns sections, largest first, to the first free
// (room, timeslot) pair in room preference order that fits. Every input record
// is a separate section, even when two records share dept, id and uuid.
// Assignments are returned in section processing order; sections that fit
// nowhere are omitted.
func Schedule(sections []models.SectionRecord, rooms []models.RoomRecord) []models.Assignment {
	assignments, _ := schedule(sections, rooms)
	return assignments
}

// schedule returns the assignments and, in processing order, the sections
// that could not be placed.
func schedule(sections []models.SectionRecord, rooms []models.RoomRecord) ([]models.Assignment, []models.SectionRecord) {
	state := newSchedulerState(sortedRooms(rooms))
	assignments := make([]models.Assignment, 0, len(sections))
	unscheduled := make([]models.SectionRecord, 0)
	for _, section := range sortedSections(sections) {
		if a, ok := state.assign(section); ok {
			assignments = append(assignments, a)
		} else {
			unscheduled = append(unscheduled, section)
		}
	}
	return assignments, unscheduled
}

type roomSlot struct {
	room int
	slot int
}

type schedulerState struct {
	rooms []models.RoomRecord
	used  map[roomSlot]bool
}

func newSchedulerState(rooms []models.RoomRecord) *schedulerState {
	return &schedulerState{
		rooms: rooms,
		used:  make(map[roomSlot]bool),
	}
}

func (s *schedulerState) assign(section models.SectionRecord) (models.Assignment, bool) {
	need := section.Enrollment()
	for r, room := range s.rooms {
		if room.Seats < need {
			// rooms are sorted by capacity, so no later room fits either
			break
		}
		for _, ts := range models.Timeslots {
			pos := roomSlot{room: r, slot: ts.Index}
			if s.used[pos] {
				continue
			}
			s.used[pos] = true
			return models.Assignment{Room: room, Section: section, Timeslot: ts.Label}, true
		}
	}
	return models.Assignment{}, false
}

// sortedSections orders sections by enrollment, then (dept, id, uuid). The
// sort is stable, so identical records keep their input order.
func sortedSections(sections []models.SectionRecord) []models.SectionRecord {
	out := make([]models.SectionRecord, len(sections))
	copy(out, sections)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Enrollment() != b.Enrollment() {
			return a.Enrollment() > b.Enrollment()
		}
		if a.Dept != b.Dept {
			return a.Dept < b.Dept
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.UUID < b.UUID
	})
	return out
}

func sortedRooms(rooms []models.RoomRecord) []models.RoomRecord {
	out := make([]models.RoomRecord, len(rooms))
	copy(out, rooms)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Seats != b.Seats {
			return a.Seats > b.Seats
		}
		if a.ShortName != b.ShortName {
			return a.ShortName < b.ShortName
		}
		return a.Number < b.Number
	})
	return out
}
