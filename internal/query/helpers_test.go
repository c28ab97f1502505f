package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

type staticLookup map[string]*models.Dataset

func (s staticLookup) Lookup(id string) (*models.Dataset, error) {
	if ds, ok := s[id]; ok {
		return ds, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("dataset %q not found", id))
}

func section(dept, id, uuid, instructor string, avg, pass, fail, audit, year float64) models.Row {
	return models.Row{
		"dept":       models.StringValue(dept),
		"id":         models.StringValue(id),
		"uuid":       models.StringValue(uuid),
		"instructor": models.StringValue(instructor),
		"title":      models.StringValue(dept + " " + id),
		"avg":        models.NumberValue(avg),
		"pass":       models.NumberValue(pass),
		"fail":       models.NumberValue(fail),
		"audit":      models.NumberValue(audit),
		"year":       models.NumberValue(year),
	}
}

func room(shortname, number, furniture string, seats float64) models.Row {
	return models.Row{
		"fullname":  models.StringValue(shortname + " building"),
		"shortname": models.StringValue(shortname),
		"number":    models.StringValue(number),
		"name":      models.StringValue(shortname + "_" + number),
		"address":   models.StringValue("2329 West Mall"),
		"type":      models.StringValue("Small Group"),
		"furniture": models.StringValue(furniture),
		"href":      models.StringValue("http://example.com/" + shortname + "-" + number),
		"lat":       models.NumberValue(49.26),
		"lon":       models.NumberValue(-123.25),
		"seats":     models.NumberValue(seats),
	}
}

func coursesFixture() *models.Dataset {
	return &models.Dataset{
		ID:   "sections",
		Kind: models.DatasetKindCourses,
		Rows: []models.Row{
			section("cpsc", "310", "1", "smith, ann", 80, 100, 10, 0, 2015),
			section("cpsc", "310", "2", "jones, bo", 70, 50, 5, 1, 2016),
			section("math", "100", "3", "smith, ann", 90.5, 20, 0, 0, 2015),
			section("cpsc", "210", "4", "lee, cy", 85, 30, 2, 0, 1900),
			section("engl", "112", "5", "wong, di", 75.25, 60, 3, 2, 2016),
			section("cpsc", "110", "6", "lee, cy", 70, 200, 40, 5, 2015),
		},
	}
}

func roomsFixture() *models.Dataset {
	return &models.Dataset{
		ID:   "rooms",
		Kind: models.DatasetKindRooms,
		Rows: []models.Row{
			room("DMP", "110", "Classroom-Fixed Tables/Movable Chairs", 120),
			room("DMP", "201", "Classroom-Movable Tables & Chairs", 40),
			room("ANGU", "098", "Classroom-Fixed Tables/Fixed Chairs", 260),
		},
	}
}

func fixtures() staticLookup {
	courses := coursesFixture()
	rooms := roomsFixture()
	return staticLookup{courses.ID: courses, rooms.ID: rooms}
}

func mustDecode(t *testing.T, raw string) map[string]any {
	t.Helper()
	doc, err := DecodeDocument([]byte(raw), FormatJSON)
	require.NoError(t, err)
	return doc
}

func mustValidate(t *testing.T, lookup DatasetLookup, raw string) *Query {
	t.Helper()
	q, err := NewValidator(lookup).Validate(mustDecode(t, raw))
	require.NoError(t, err)
	return q
}
