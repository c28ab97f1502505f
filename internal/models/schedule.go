package models

import (
	"encoding/json"
	"strings"
)

// SectionRecord is a course section offered to the scheduler.
type SectionRecord struct {
	Dept  string `json:"dept"`
	ID    string `json:"id"`
	UUID  string `json:"uuid"`
	Pass  int    `json:"pass"`
	Fail  int    `json:"fail"`
	Audit int    `json:"audit"`
}

// Enrollment is the number of seats the section needs.
func (s SectionRecord) Enrollment() int {
	return s.Pass + s.Fail + s.Audit
}

// RoomRecord is a room offered to the scheduler.
type RoomRecord struct {
	ShortName string  `json:"shortname"`
	Number    string  `json:"number"`
	Seats     int     `json:"seats"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Name returns the display name, e.g. "BUCH A101".
func (r RoomRecord) Name() string {
	return r.ShortName + " " + r.Number
}

// Timeslot is one slot of the canonical scheduling grid.
type Timeslot struct {
	Index int
	Label string
}

// Timeslots enumerates the grid in canonical order: MWF one-hour slots from
// 08:00 to 17:00 followed by TR ninety-minute slots from 08:00 to 17:00.
var Timeslots = buildTimeslots()

func buildTimeslots() []Timeslot {
	labels := []string{
		"MWF 0800-0900", "MWF 0900-1000", "MWF 1000-1100",
		"MWF 1100-1200", "MWF 1200-1300", "MWF 1300-1400",
		"MWF 1400-1500", "MWF 1500-1600", "MWF 1600-1700",
		"TR  0800-0930", "TR  0930-1100", "TR  1100-1230",
		"TR  1230-1400", "TR  1400-1530", "TR  1530-1700",
	}
	slots := make([]Timeslot, len(labels))
	for i, label := range labels {
		slots[i] = Timeslot{Index: i, Label: label}
	}
	return slots
}

// Assignment places a section in a room at a timeslot.
type Assignment struct {
	Room     RoomRecord    `json:"room"`
	Section  SectionRecord `json:"section"`
	Timeslot string        `json:"timeslot"`
}

// MarshalJSON renders the assignment as a [room, section, timeslot] triple.
func (a Assignment) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.Room, a.Section, a.Timeslot})
}

// SectionFromRecord builds a SectionRecord from a query result record whose
// keys are "<dataset>_<field>". Missing fields keep their zero values.
func SectionFromRecord(record map[string]any) SectionRecord {
	var s SectionRecord
	for key, value := range record {
		switch fieldSuffix(key) {
		case "dept":
			s.Dept, _ = value.(string)
		case "id":
			s.ID, _ = value.(string)
		case "uuid":
			s.UUID, _ = value.(string)
		case "pass":
			s.Pass = intOf(value)
		case "fail":
			s.Fail = intOf(value)
		case "audit":
			s.Audit = intOf(value)
		}
	}
	return s
}

// RoomFromRecord builds a RoomRecord from a query result record whose keys
// are "<dataset>_<field>".
func RoomFromRecord(record map[string]any) RoomRecord {
	var r RoomRecord
	for key, value := range record {
		switch fieldSuffix(key) {
		case "shortname":
			r.ShortName, _ = value.(string)
		case "number":
			r.Number, _ = value.(string)
		case "seats":
			r.Seats = intOf(value)
		case "lat":
			r.Lat, _ = toFloat(value)
		case "lon":
			r.Lon, _ = toFloat(value)
		}
	}
	return r
}

func fieldSuffix(key string) string {
	if idx := strings.Index(key, "_"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func intOf(v any) int {
	f, ok := toFloat(v)
	if !ok {
		return 0
	}
	return int(f)
}
