package query

import (
	"fmt"

	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

// DefaultMaxResults caps the number of rows a query may return.
const DefaultMaxResults = 5000

// Executor evaluates validated queries. It holds no mutable state and is
// safe for concurrent use.
type Executor struct {
	maxResults int
}

// NewExecutor builds an Executor; a non-positive limit falls back to DefaultMaxResults.
func NewExecutor(maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Executor{maxResults: maxResults}
}

// MaxResults returns the configured result cap.
func (e *Executor) MaxResults() int {
	return e.maxResults
}

// tuple is an output row keyed by output key, before conversion to Record.
type tuple map[string]models.Value

// Execute runs filter, transformation, projection, limit and order. The
// limit is checked before sorting since ordering never changes cardinality.
func (e *Executor) Execute(q *Query) ([]Record, error) {
	if q == nil || q.Dataset == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query is not bound to a dataset")
	}
	filter := q.Filter
	if filter == nil {
		filter = All{}
	}

	matched := make([]models.Row, 0)
	for _, row := range q.Dataset.Rows {
		if filter.Eval(row) {
			matched = append(matched, row)
		}
	}

	var rows []tuple
	if q.Transform != nil {
		rows = project(groupAndApply(matched, q.Transform), q.Columns)
	} else {
		if len(matched) > e.maxResults {
			return nil, e.tooLarge(len(matched))
		}
		rows = projectRows(matched, q.Columns)
	}

	if len(rows) > e.maxResults {
		return nil, e.tooLarge(len(rows))
	}

	sortTuples(rows, q.Order)

	out := make([]Record, len(rows))
	for i, row := range rows {
		rec := make(Record, len(row))
		for key, value := range row {
			rec[key] = value.Interface()
		}
		out[i] = rec
	}
	return out, nil
}

func (e *Executor) tooLarge(n int) error {
	return appErrors.Clone(appErrors.ErrResultTooLarge, fmt.Sprintf("query returned %d rows, the maximum is %d", n, e.maxResults))
}

func projectRows(rows []models.Row, columns []Column) []tuple {
	out := make([]tuple, len(rows))
	for i, row := range rows {
		t := make(tuple, len(columns))
		for _, col := range columns {
			if col.Field != nil {
				t[col.Key] = col.Field.valueOf(row)
			}
		}
		out[i] = t
	}
	return out
}

func project(rows []tuple, columns []Column) []tuple {
	out := make([]tuple, len(rows))
	for i, row := range rows {
		t := make(tuple, len(columns))
		for _, col := range columns {
			t[col.Key] = row[col.Key]
		}
		out[i] = t
	}
	return out
}
