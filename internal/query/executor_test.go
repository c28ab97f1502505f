package query

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

func run(t *testing.T, lookup DatasetLookup, raw string) []Record {
	t.Helper()
	records, err := NewExecutor(0).Execute(mustValidate(t, lookup, raw))
	require.NoError(t, err)
	return records
}

func uuids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i], _ = r["sections_uuid"].(string)
	}
	return out
}

func TestExecuteAllReturnsEveryRow(t *testing.T) {
	records := run(t, fixtures(), `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_uuid", "sections_avg"]}}`)
	require.Len(t, records, len(coursesFixture().Rows))
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, uuids(records))
	assert.Equal(t, Record{"sections_uuid": "1", "sections_avg": 80.0}, records[0])
}

func TestExecuteComparisons(t *testing.T) {
	cases := map[string]struct {
		where string
		want  []string
	}{
		"GT":         {`{"GT": {"sections_avg": 80}}`, []string{"3", "4"}},
		"LT":         {`{"LT": {"sections_avg": 75.25}}`, []string{"2", "6"}},
		"EQ":         {`{"EQ": {"sections_year": 1900}}`, []string{"4"}},
		"AND":        {`{"AND": [{"EQ": {"sections_year": 2015}}, {"IS": {"sections_dept": "cpsc"}}]}`, []string{"1", "6"}},
		"OR":         {`{"OR": [{"IS": {"sections_dept": "math"}}, {"IS": {"sections_dept": "engl"}}]}`, []string{"3", "5"}},
		"NOT":        {`{"NOT": {"IS": {"sections_dept": "cpsc"}}}`, []string{"3", "5"}},
		"exact":      {`{"IS": {"sections_instructor": "lee, cy"}}`, []string{"4", "6"}},
		"prefix":     {`{"IS": {"sections_instructor": "smith*"}}`, []string{"1", "3"}},
		"suffix":     {`{"IS": {"sections_instructor": "*, bo"}}`, []string{"2"}},
		"contains":   {`{"IS": {"sections_instructor": "*n*"}}`, []string{"1", "2", "3", "5"}},
		"only star":  {`{"IS": {"sections_dept": "*"}}`, []string{"1", "2", "3", "4", "5", "6"}},
		"no partial": {`{"IS": {"sections_dept": "cps"}}`, []string{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			records := run(t, fixtures(), fmt.Sprintf(`{"WHERE": %s, "OPTIONS": {"COLUMNS": ["sections_uuid"]}}`, tc.where))
			assert.Equal(t, tc.want, uuids(records))
		})
	}
}

func TestExecuteDoubleNegationSelectsSameRows(t *testing.T) {
	filters := []string{
		`{"GT": {"sections_avg": 75}}`,
		`{"IS": {"sections_instructor": "*a*"}}`,
		`{"OR": [{"LT": {"sections_pass": 40}}, {"EQ": {"sections_year": 2016}}]}`,
	}
	for _, f := range filters {
		plain := run(t, fixtures(), fmt.Sprintf(`{"WHERE": %s, "OPTIONS": {"COLUMNS": ["sections_uuid"]}}`, f))
		double := run(t, fixtures(), fmt.Sprintf(`{"WHERE": {"NOT": {"NOT": %s}}, "OPTIONS": {"COLUMNS": ["sections_uuid"]}}`, f))
		assert.Equal(t, uuids(plain), uuids(double), f)
	}
}

func TestExecuteOrdering(t *testing.T) {
	records := run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_uuid", "sections_avg"], "ORDER": "sections_avg"}
	}`)
	// 2 and 6 tie on avg and keep dataset order
	assert.Equal(t, []string{"2", "6", "5", "1", "4", "3"}, uuids(records))

	records = run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {
			"COLUMNS": ["sections_uuid", "sections_dept", "sections_avg"],
			"ORDER": {"dir": "DOWN", "keys": ["sections_dept", "sections_avg"]}
		}
	}`)
	assert.Equal(t, []string{"3", "5", "4", "1", "2", "6"}, uuids(records))

	records = run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {
			"COLUMNS": ["sections_uuid", "sections_year"],
			"ORDER": {"dir": "UP", "keys": ["sections_year"]}
		}
	}`)
	assert.Equal(t, []string{"4", "1", "3", "6", "2", "5"}, uuids(records))
}

func TestExecuteGroupAndApply(t *testing.T) {
	records := run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_dept", "maxAvg", "minAvg", "avgAvg", "sumPass", "sections"]},
		"TRANSFORMATIONS": {
			"GROUP": ["sections_dept"],
			"APPLY": [
				{"maxAvg": {"MAX": "sections_avg"}},
				{"minAvg": {"MIN": "sections_avg"}},
				{"avgAvg": {"AVG": "sections_avg"}},
				{"sumPass": {"SUM": "sections_pass"}},
				{"sections": {"COUNT": "sections_uuid"}}
			]
		}
	}`)

	require.Len(t, records, 3)
	// buckets come out in first-seen order
	assert.Equal(t, Record{"sections_dept": "cpsc", "maxAvg": 85.0, "minAvg": 70.0, "avgAvg": 76.25, "sumPass": 380.0, "sections": 4.0}, records[0])
	assert.Equal(t, Record{"sections_dept": "math", "maxAvg": 90.5, "minAvg": 90.5, "avgAvg": 90.5, "sumPass": 20.0, "sections": 1.0}, records[1])
	assert.Equal(t, "engl", records[2]["sections_dept"])
}

func TestExecuteCountOnUniqueKeyIsOne(t *testing.T) {
	records := run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_uuid", "n"]},
		"TRANSFORMATIONS": {"GROUP": ["sections_uuid"], "APPLY": [{"n": {"COUNT": "sections_uuid"}}]}
	}`)
	require.Len(t, records, len(coursesFixture().Rows))
	for _, r := range records {
		assert.Equal(t, 1.0, r["n"])
	}
}

func TestExecuteCountDistinctValues(t *testing.T) {
	records := run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_dept", "instructors", "years"]},
		"TRANSFORMATIONS": {
			"GROUP": ["sections_dept"],
			"APPLY": [{"instructors": {"COUNT": "sections_instructor"}}, {"years": {"COUNT": "sections_year"}}]
		}
	}`)
	assert.Equal(t, 3.0, records[0]["instructors"])
	assert.Equal(t, 3.0, records[0]["years"])
}

func TestExecuteAverageTimesCountReconstructsSum(t *testing.T) {
	records := run(t, fixtures(), `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["sections_year", "avg", "sum", "n"]},
		"TRANSFORMATIONS": {
			"GROUP": ["sections_year"],
			"APPLY": [{"avg": {"AVG": "sections_avg"}}, {"sum": {"SUM": "sections_avg"}}, {"n": {"COUNT": "sections_uuid"}}]
		}
	}`)
	for _, r := range records {
		avg := r["avg"].(float64)
		sum := r["sum"].(float64)
		n := r["n"].(float64)
		assert.InDelta(t, sum, avg*n, 0.01*n, "year %v", r["sections_year"])
	}
}

func TestExecuteRoundsHalfAwayFromZeroOnce(t *testing.T) {
	ds := &models.Dataset{ID: "tiny", Kind: models.DatasetKindCourses, Rows: []models.Row{
		section("a", "1", "1", "x", 1.005, 0, 0, 0, 2000),
		section("b", "1", "2", "x", -1.005, 0, 0, 0, 2000),
		section("c", "1", "3", "x", 0.333, 0, 0, 0, 2000),
		section("c", "1", "4", "x", 0.333, 0, 0, 0, 2000),
		section("c", "1", "5", "x", 0.333, 0, 0, 0, 2000),
	}}
	records := run(t, staticLookup{"tiny": ds}, `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["tiny_dept", "sum", "avg"]},
		"TRANSFORMATIONS": {"GROUP": ["tiny_dept"], "APPLY": [{"sum": {"SUM": "tiny_avg"}}, {"avg": {"AVG": "tiny_avg"}}]}
	}`)
	require.Len(t, records, 3)
	assert.Equal(t, 1.01, records[0]["sum"])
	assert.Equal(t, -1.01, records[1]["sum"])
	// 0.999 rounds once to 1, not three rounded 0.33 terms
	assert.Equal(t, 1.0, records[2]["sum"])
	assert.Equal(t, 0.33, records[2]["avg"])
}

func TestExecuteGroupsByNumericValue(t *testing.T) {
	ds := &models.Dataset{ID: "z", Kind: models.DatasetKindCourses, Rows: []models.Row{
		section("a", "1", "1", "x", 0, 1, 0, 0, 2000),
		section("a", "1", "2", "x", math.Copysign(0, -1), 2, 0, 0, 2000),
	}}
	records := run(t, staticLookup{"z": ds}, `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["z_avg", "n"]},
		"TRANSFORMATIONS": {"GROUP": ["z_avg"], "APPLY": [{"n": {"COUNT": "z_uuid"}}]}
	}`)
	require.Len(t, records, 1)
	assert.Equal(t, 2.0, records[0]["n"])
}

func TestExecuteTransformWithOrder(t *testing.T) {
	records := run(t, fixtures(), `{
		"WHERE": {"GT": {"rooms_seats": 30}},
		"OPTIONS": {"COLUMNS": ["rooms_shortname", "maxSeats"], "ORDER": {"dir": "DOWN", "keys": ["maxSeats"]}},
		"TRANSFORMATIONS": {"GROUP": ["rooms_shortname"], "APPLY": [{"maxSeats": {"MAX": "rooms_seats"}}]}
	}`)
	assert.Equal(t, []Record{
		{"rooms_shortname": "ANGU", "maxSeats": 260.0},
		{"rooms_shortname": "DMP", "maxSeats": 120.0},
	}, records)
}

func bigDataset(n int) *models.Dataset {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = section("big", "100", fmt.Sprint(i), "x", float64(i%100), 1, 0, 0, 2000)
	}
	return &models.Dataset{ID: "big", Kind: models.DatasetKindCourses, Rows: rows}
}

func TestExecuteResultLimit(t *testing.T) {
	const doc = `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["big_uuid"]}}`

	exact := mustValidate(t, staticLookup{"big": bigDataset(DefaultMaxResults)}, doc)
	records, err := NewExecutor(0).Execute(exact)
	require.NoError(t, err)
	assert.Len(t, records, DefaultMaxResults)

	over := mustValidate(t, staticLookup{"big": bigDataset(DefaultMaxResults + 1)}, doc)
	records, err = NewExecutor(0).Execute(over)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrResultTooLarge))
	assert.Empty(t, records)
}

func TestExecuteLimitCountsGroupsNotRows(t *testing.T) {
	q := mustValidate(t, staticLookup{"big": bigDataset(DefaultMaxResults + 1)}, `{
		"WHERE": {},
		"OPTIONS": {"COLUMNS": ["big_avg", "n"]},
		"TRANSFORMATIONS": {"GROUP": ["big_avg"], "APPLY": [{"n": {"COUNT": "big_uuid"}}]}
	}`)
	records, err := NewExecutor(0).Execute(q)
	require.NoError(t, err)
	assert.Len(t, records, 100)
}

func TestExecuteConfiguredLimit(t *testing.T) {
	q := mustValidate(t, fixtures(), `{"WHERE": {}, "OPTIONS": {"COLUMNS": ["sections_uuid"]}}`)
	_, err := NewExecutor(5).Execute(q)
	assert.True(t, errors.Is(err, appErrors.ErrResultTooLarge))

	records, err := NewExecutor(6).Execute(q)
	require.NoError(t, err)
	assert.Len(t, records, 6)
}
