// Package query validates and evaluates structured queries over in-memory datasets.
//
// A query document is decoded from JSON or YAML into a map, checked by the
// Validator against the dataset registry, and evaluated by the Executor.
package query

import (
	"github.com/noah-isme/campus-insight/internal/models"
)

// Query document keys.
const (
	keyWhere           = "WHERE"
	keyOptions         = "OPTIONS"
	keyTransformations = "TRANSFORMATIONS"
	keyColumns         = "COLUMNS"
	keyOrder           = "ORDER"
	keyGroup           = "GROUP"
	keyApply           = "APPLY"
	keyDir             = "dir"
	keyKeys            = "keys"
)

// FieldRef is a resolved "<dataset>_<field>" key.
type FieldRef struct {
	Key  string
	Name string
	Type models.FieldType
}

func (f FieldRef) valueOf(row models.Row) models.Value {
	return row[f.Name]
}

// AggregateOp is an APPLY operator.
type AggregateOp string

const (
	AggregateMax   AggregateOp = "MAX"
	AggregateMin   AggregateOp = "MIN"
	AggregateAvg   AggregateOp = "AVG"
	AggregateSum   AggregateOp = "SUM"
	AggregateCount AggregateOp = "COUNT"
)

func (op AggregateOp) valid() bool {
	switch op {
	case AggregateMax, AggregateMin, AggregateAvg, AggregateSum, AggregateCount:
		return true
	}
	return false
}

func (op AggregateOp) numericOnly() bool {
	return op != AggregateCount
}

// ApplyRule computes one output value per group.
type ApplyRule struct {
	Key   string
	Op    AggregateOp
	Field FieldRef
}

// Transform is the GROUP/APPLY stage of a query.
type Transform struct {
	Group []FieldRef
	Apply []ApplyRule
}

// Column is a projected output key. Field is nil for APPLY outputs.
type Column struct {
	Key   string
	Field *FieldRef
}

// Order is a resolved ORDER clause.
type Order struct {
	Descending bool
	Keys       []string
}

// Query is a validated, fully resolved query bound to one dataset snapshot.
type Query struct {
	Dataset   *models.Dataset
	Filter    Filter
	Columns   []Column
	Order     *Order
	Transform *Transform
}

// Record is one projected result row. Values are float64 or string.
type Record map[string]any
