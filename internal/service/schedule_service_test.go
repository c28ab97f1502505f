package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/dto"
	"github.com/noah-isme/campus-insight/internal/models"
)

func testSection(dept, id, uuid string, enrollment int) models.SectionRecord {
	return models.SectionRecord{Dept: dept, ID: id, UUID: uuid, Pass: enrollment}
}

func testRoom(shortname, number string, seats int) models.RoomRecord {
	return models.RoomRecord{ShortName: shortname, Number: number, Seats: seats}
}

func TestScheduleLargestSectionsFirst(t *testing.T) {
	sections := []models.SectionRecord{
		testSection("cpsc", "340", "1319", 110),
		testSection("cpsc", "340", "3397", 175),
		testSection("cpsc", "344", "62413", 95),
		testSection("cpsc", "344", "72385", 44),
	}
	rooms := []models.RoomRecord{
		testRoom("AERL", "120", 144),
		testRoom("ALRD", "105", 94),
		testRoom("ANGU", "098", 260),
		testRoom("BUCH", "A101", 275),
	}

	got := Schedule(sections, rooms)
	require.Len(t, got, 4)

	expected := []struct {
		uuid     string
		timeslot string
	}{
		{"3397", "MWF 0800-0900"},
		{"1319", "MWF 0900-1000"},
		{"62413", "MWF 1000-1100"},
		{"72385", "MWF 1100-1200"},
	}
	for i, want := range expected {
		assert.Equal(t, "BUCH A101", got[i].Room.Name(), "assignment %d", i)
		assert.Equal(t, want.uuid, got[i].Section.UUID, "assignment %d", i)
		assert.Equal(t, want.timeslot, got[i].Timeslot, "assignment %d", i)
	}
}

func TestScheduleMovesToNextRoomWhenSlotsRunOut(t *testing.T) {
	var sections []models.SectionRecord
	for i := 0; i < 17; i++ {
		sections = append(sections, testSection("math", "100", fmt.Sprintf("%02d", i), 30))
	}
	rooms := []models.RoomRecord{testRoom("DMP", "110", 40), testRoom("DMP", "201", 40)}

	got := Schedule(sections, rooms)
	require.Len(t, got, 17)
	for i := 0; i < 15; i++ {
		assert.Equal(t, "DMP 110", got[i].Room.Name())
		assert.Equal(t, models.Timeslots[i].Label, got[i].Timeslot)
		assert.Equal(t, fmt.Sprintf("%02d", i), got[i].Section.UUID)
	}
	assert.Equal(t, "DMP 201", got[15].Room.Name())
	assert.Equal(t, "MWF 0800-0900", got[15].Timeslot)
	assert.Equal(t, "TR  1530-1700", got[14].Timeslot)
}

func TestScheduleSkipsSectionsThatFitNowhere(t *testing.T) {
	sections := []models.SectionRecord{
		testSection("cpsc", "110", "1", 500),
		testSection("cpsc", "121", "2", 40),
	}
	got := Schedule(sections, []models.RoomRecord{testRoom("DMP", "110", 120)})
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Section.UUID)

	assert.Empty(t, Schedule(sections, nil))
	assert.Empty(t, Schedule(nil, []models.RoomRecord{testRoom("DMP", "110", 120)}))
}

func TestScheduleTieBreaksAreDeterministic(t *testing.T) {
	sections := []models.SectionRecord{
		testSection("math", "100", "9", 50),
		testSection("cpsc", "110", "2", 50),
		testSection("cpsc", "110", "1", 50),
	}
	rooms := []models.RoomRecord{
		testRoom("SWNG", "121", 60),
		testRoom("ANGU", "098", 60),
	}
	got := Schedule(sections, rooms)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Section.UUID)
	assert.Equal(t, "2", got[1].Section.UUID)
	assert.Equal(t, "9", got[2].Section.UUID)
	for _, a := range got {
		assert.Equal(t, "ANGU 098", a.Room.Name())
	}

	reversed := []models.SectionRecord{sections[2], sections[1], sections[0]}
	assert.Equal(t, got, Schedule(reversed, []models.RoomRecord{rooms[1], rooms[0]}))
}

func TestScheduleTreatsEveryRecordAsASection(t *testing.T) {
	s := testSection("cpsc", "310", "1", 20)
	got := Schedule([]models.SectionRecord{s, s}, []models.RoomRecord{testRoom("DMP", "110", 40)})
	require.Len(t, got, 2)
	assert.Equal(t, "MWF 0800-0900", got[0].Timeslot)
	assert.Equal(t, "MWF 0900-1000", got[1].Timeslot)
}

func TestScheduleKeepsSectionsWithoutUUID(t *testing.T) {
	sections := []models.SectionRecord{
		testSection("cpsc", "310", "", 50),
		testSection("cpsc", "310", "", 100),
	}
	resp := NewScheduleService(nil, nil).Generate(context.Background(), dto.GenerateScheduleRequest{
		Sections: sections,
		Rooms:    []models.RoomRecord{testRoom("BUCH", "A101", 275)},
	})

	require.Len(t, resp.Assignments, 2)
	assert.Equal(t, 100, resp.Assignments[0].Section.Enrollment())
	assert.Equal(t, 50, resp.Assignments[1].Section.Enrollment())
	assert.NotEqual(t, resp.Assignments[0].Timeslot, resp.Assignments[1].Timeslot)
	assert.Empty(t, resp.Unscheduled)
	assert.Equal(t, 2, resp.Stats.Scheduled)
}

func TestScheduleInvariantsOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 25; run++ {
		var sections []models.SectionRecord
		numSections, numRooms := rng.Intn(120), rng.Intn(6)
		for i := 0; i < numSections; i++ {
			sections = append(sections, testSection("dept", fmt.Sprint(rng.Intn(5)), fmt.Sprint(i), rng.Intn(300)))
		}
		var rooms []models.RoomRecord
		for i := 0; i < numRooms; i++ {
			rooms = append(rooms, testRoom("BLDG", fmt.Sprint(i), rng.Intn(300)))
		}

		got := Schedule(sections, rooms)
		assert.LessOrEqual(t, len(got), len(sections))

		slots := make(map[string]bool)
		seen := make(map[string]bool)
		prev := -1
		for _, a := range got {
			assert.GreaterOrEqual(t, a.Room.Seats, a.Section.Enrollment())
			slot := a.Room.Name() + "|" + a.Timeslot
			assert.False(t, slots[slot], "room/timeslot %s reused", slot)
			slots[slot] = true
			assert.False(t, seen[a.Section.UUID])
			seen[a.Section.UUID] = true
			if prev >= 0 {
				assert.LessOrEqual(t, a.Section.Enrollment(), prev)
			}
			prev = a.Section.Enrollment()
		}
	}
}

func TestScheduleServiceGenerate(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewScheduleService(metrics, zap.NewNop())

	resp := svc.Generate(context.Background(), dto.GenerateScheduleRequest{
		Sections: []models.SectionRecord{
			testSection("cpsc", "110", "1", 500),
			testSection("cpsc", "121", "2", 40),
			testSection("cpsc", "121", "3", 30),
			testSection("cpsc", "121", "2", 40),
		},
		Rooms: []models.RoomRecord{testRoom("DMP", "110", 120), testRoom("DMP", "201", 35)},
	})

	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Assignments, 3)
	assert.Equal(t, "2", resp.Assignments[0].Section.UUID)
	assert.Equal(t, "2", resp.Assignments[1].Section.UUID)
	assert.Equal(t, "MWF 0900-1000", resp.Assignments[1].Timeslot)
	assert.Equal(t, "3", resp.Assignments[2].Section.UUID)
	assert.Equal(t, "DMP 110", resp.Assignments[2].Room.Name())
	assert.Equal(t, "MWF 1000-1100", resp.Assignments[2].Timeslot)

	require.Len(t, resp.Unscheduled, 1)
	assert.Equal(t, "1", resp.Unscheduled[0].UUID)
	assert.Equal(t, dto.ScheduleStats{Sections: 4, Rooms: 2, Scheduled: 3, Unscheduled: 1, RoomsUsed: 1}, resp.Stats)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.ScheduleRuns)
	assert.Equal(t, uint64(3), snap.SectionsScheduled)
	assert.Equal(t, uint64(1), snap.SectionsUnscheduled)
}
