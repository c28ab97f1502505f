package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-insight/internal/models"
	"github.com/noah-isme/campus-insight/pkg/config"
)

const sectionsJSON = `[
  {"dept":"cpsc","id":"340","uuid":"1319","instructor":"","title":"machine learning","avg":74.5,"pass":100,"fail":8,"audit":2,"year":2015},
  {"dept":"cpsc","id":"340","uuid":"3397","instructor":"","title":"machine learning","avg":71,"pass":170,"fail":5,"audit":0,"year":1900},
  {"dept":"math","id":"100","uuid":"77","instructor":"","title":"calculus","avg":68,"pass":20,"fail":1,"audit":0,"year":2016}
]`

const roomsJSON = `[
  {"fullname":"Buchanan","shortname":"BUCH","number":"A101","name":"BUCH_A101","address":"1866 Main Mall","lat":49.26826,"lon":-123.25468,"seats":275,"type":"Tiered Large Group","furniture":"Classroom-Fixed Tablets","href":"http://example.com/BUCH-A101"},
  {"fullname":"Hugh Dempster Pavilion","shortname":"DMP","number":"110","name":"DMP_110","address":"6245 Agronomy Road","lat":49.26125,"lon":-123.24807,"seats":120,"type":"Tiered Large Group","furniture":"Classroom-Fixed Tables/Movable Chairs","href":"http://example.com/DMP-110"}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestApp(t *testing.T) (*app, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Query: config.QueryConfig{MaxResults: config.DefaultMaxResults},
		Exports: config.ExportsConfig{
			StorageDir:        filepath.Join(dir, "exports"),
			WorkerConcurrency: 1,
			ResultTTL:         time.Hour,
		},
	}
	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	writeFile(t, dir, "sections.json", sectionsJSON)
	writeFile(t, dir, "rooms.json", roomsJSON)
	return a, dir
}

func TestDatasetFlags(t *testing.T) {
	var flags datasetFlags
	require.NoError(t, flags.Set("rooms:rooms:data/rooms.json"))
	require.NoError(t, flags.Set("sections:courses:C:/data/courses.json"))
	assert.Equal(t, datasetSpec{ID: "sections", Kind: models.DatasetKindCourses, Path: "C:/data/courses.json"}, flags[1])
	assert.Equal(t, "rooms:rooms:data/rooms.json,sections:courses:C:/data/courses.json", flags.String())

	assert.Error(t, flags.Set("rooms"))
	assert.Error(t, flags.Set("rooms:books:x.json"))
}

func TestRunList(t *testing.T) {
	a, dir := newTestApp(t)
	var out bytes.Buffer
	code := run(context.Background(), a, "list", []string{
		"-dataset", "sections:courses:" + filepath.Join(dir, "sections.json"),
		"-dataset", "rooms:rooms:" + filepath.Join(dir, "rooms.json"),
	}, &out)
	require.Equal(t, 0, code)

	var summaries []models.DatasetSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summaries))
	assert.Equal(t, []models.DatasetSummary{
		{ID: "sections", Kind: models.DatasetKindCourses, NumRows: 3},
		{ID: "rooms", Kind: models.DatasetKindRooms, NumRows: 2},
	}, summaries)
}

func TestRunQueryWithExport(t *testing.T) {
	a, dir := newTestApp(t)
	queryPath := writeFile(t, dir, "query.yaml", `
WHERE:
  GT:
    rooms_seats: 100
OPTIONS:
  COLUMNS: [rooms_shortname, rooms_seats]
  ORDER: rooms_seats
`)
	var out bytes.Buffer
	code := run(context.Background(), a, "query", []string{
		"-dataset", "rooms:rooms:" + filepath.Join(dir, "rooms.json"),
		"-q", queryPath,
		"-export", "csv",
		"-title", "big rooms",
		"-async",
	}, &out)
	require.Equal(t, 0, code)
	assert.JSONEq(t, `[{"rooms_shortname":"DMP","rooms_seats":120},{"rooms_shortname":"BUCH","rooms_seats":275}]`, out.String())

	matches, err := filepath.Glob(filepath.Join(dir, "exports", "big_rooms_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "rooms_shortname,rooms_seats\nDMP,120\nBUCH,275\n", string(data))
}

func TestRunQueryFailures(t *testing.T) {
	a, dir := newTestApp(t)
	queryPath := writeFile(t, dir, "query.json", `{"WHERE":{},"OPTIONS":{"COLUMNS":["rooms_seats"]}}`)

	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), a, "query", []string{"-q", queryPath}, &out))
	assert.Equal(t, 1, run(context.Background(), a, "query", nil, &out))
	assert.Equal(t, 2, run(context.Background(), a, "bogus", nil, &out))
	assert.Equal(t, 1, run(context.Background(), a, "list", []string{"-dataset", "rooms:rooms:" + filepath.Join(dir, "missing.json")}, &out))
	assert.Empty(t, out.String())
}

func TestRunSchedule(t *testing.T) {
	a, dir := newTestApp(t)
	sectionsQuery := writeFile(t, dir, "sections_query.json", `{
  "WHERE": {"IS": {"sections_dept": "cpsc"}},
  "OPTIONS": {"COLUMNS": ["sections_dept", "sections_id", "sections_uuid", "sections_pass", "sections_fail", "sections_audit"]}
}`)
	roomsQuery := writeFile(t, dir, "rooms_query.json", `{
  "WHERE": {},
  "OPTIONS": {"COLUMNS": ["rooms_shortname", "rooms_number", "rooms_seats"]}
}`)
	metricsPath := filepath.Join(dir, "metrics.prom")

	var out bytes.Buffer
	code := run(context.Background(), a, "schedule", []string{
		"-dataset", "sections:courses:" + filepath.Join(dir, "sections.json"),
		"-dataset", "rooms:rooms:" + filepath.Join(dir, "rooms.json"),
		"-sections", sectionsQuery,
		"-rooms", roomsQuery,
		"-export", "pdf",
		"-metrics-file", metricsPath,
	}, &out)
	require.Equal(t, 0, code)

	var resp struct {
		Assignments [][]json.RawMessage `json:"assignments"`
		Stats       struct {
			Scheduled int `json:"scheduled"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Assignments, 2)
	assert.Equal(t, 2, resp.Stats.Scheduled)
	assert.JSONEq(t, `"MWF 0800-0900"`, string(resp.Assignments[0][2]))
	assert.Contains(t, string(resp.Assignments[0][1]), `"3397"`)

	matches, err := filepath.Glob(filepath.Join(dir, "exports", "*.pdf"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(metrics), "insight_schedule_runs_total 1"))
}
