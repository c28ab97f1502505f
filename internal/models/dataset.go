package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DatasetKind fixes the legal field set of a dataset.
type DatasetKind string

const (
	DatasetKindCourses DatasetKind = "courses"
	DatasetKindRooms   DatasetKind = "rooms"
)

// Valid reports whether the kind is one of the known dataset kinds.
func (k DatasetKind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

// ParseDatasetKind converts raw input into a DatasetKind.
func ParseDatasetKind(raw string) (DatasetKind, error) {
	kind := DatasetKind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown dataset kind %q", raw)
	}
	return kind, nil
}

// FieldType describes the value type stored in a dataset field.
type FieldType int

const (
	FieldNumber FieldType = iota + 1
	FieldString
)

func (t FieldType) String() string {
	switch t {
	case FieldNumber:
		return "number"
	case FieldString:
		return "string"
	default:
		return "unknown"
	}
}

var schemas = map[DatasetKind]map[string]FieldType{
	DatasetKindCourses: {
		"dept":       FieldString,
		"id":         FieldString,
		"uuid":       FieldString,
		"instructor": FieldString,
		"title":      FieldString,
		"avg":        FieldNumber,
		"pass":       FieldNumber,
		"fail":       FieldNumber,
		"audit":      FieldNumber,
		"year":       FieldNumber,
	},
	DatasetKindRooms: {
		"fullname":  FieldString,
		"shortname": FieldString,
		"number":    FieldString,
		"name":      FieldString,
		"address":   FieldString,
		"type":      FieldString,
		"furniture": FieldString,
		"href":      FieldString,
		"lat":       FieldNumber,
		"lon":       FieldNumber,
		"seats":     FieldNumber,
	},
}

// FieldTypeOf returns the type of a field for the kind, and whether the field exists.
func (k DatasetKind) FieldTypeOf(field string) (FieldType, bool) {
	t, ok := schemas[k][field]
	return t, ok
}

// Value is a typed dataset cell: either a number or a string.
type Value struct {
	typ FieldType
	num float64
	str string
}

// NumberValue wraps a numeric cell.
func NumberValue(n float64) Value {
	return Value{typ: FieldNumber, num: n}
}

// StringValue wraps a string cell.
func StringValue(s string) Value {
	return Value{typ: FieldString, str: s}
}

// Type returns the value type; the zero Value has no type.
func (v Value) Type() FieldType { return v.typ }

// Number returns the numeric payload.
func (v Value) Number() float64 { return v.num }

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Interface returns the payload as float64 or string.
func (v Value) Interface() any {
	switch v.typ {
	case FieldNumber:
		return v.num
	case FieldString:
		return v.str
	default:
		return nil
	}
}

// Equal compares two values by type and payload.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	if v.typ == FieldNumber {
		return v.num == other.num
	}
	return v.str == other.str
}

// Compare orders values: numbers numerically, strings byte-wise. Values of
// different types order by type so sorting stays total.
func (v Value) Compare(other Value) int {
	if v.typ != other.typ {
		if v.typ < other.typ {
			return -1
		}
		return 1
	}
	switch v.typ {
	case FieldNumber:
		switch {
		case v.num < other.num:
			return -1
		case v.num > other.num:
			return 1
		}
		return 0
	default:
		switch {
		case v.str < other.str:
			return -1
		case v.str > other.str:
			return 1
		}
		return 0
	}
}

// MarshalJSON renders the payload directly.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v Value) String() string {
	switch v.typ {
	case FieldNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case FieldString:
		return v.str
	default:
		return ""
	}
}

// Row maps bare field names (e.g. "dept") to values.
type Row map[string]Value

// NewRow type-checks a decoded object against the kind schema. Unknown keys
// are ignored; missing or mistyped fields fail.
func NewRow(kind DatasetKind, raw map[string]any) (Row, error) {
	schema, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown dataset kind %q", kind)
	}
	row := make(Row, len(schema))
	for field, typ := range schema {
		value, present := raw[field]
		if !present {
			return nil, fmt.Errorf("missing field %q", field)
		}
		switch typ {
		case FieldNumber:
			n, ok := toFloat(value)
			if !ok {
				return nil, fmt.Errorf("field %q must be a number", field)
			}
			row[field] = NumberValue(n)
		case FieldString:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("field %q must be a string", field)
			}
			row[field] = StringValue(s)
		}
	}
	return row, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Dataset is an immutable, kind-tagged collection of rows. A registered
// Dataset is shared by every reader and must be treated as read-only; use
// Clone to obtain a copy that may be modified.
type Dataset struct {
	ID   string
	Kind DatasetKind
	Rows []Row
	// Generation is unique per registration, so a dataset removed and added
	// again under the same id never shares it.
	Generation uint64
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	return &Dataset{ID: d.ID, Kind: d.Kind, Rows: CloneRows(d.Rows), Generation: d.Generation}
}

// CloneRows copies rows and their field maps.
func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		clone := make(Row, len(row))
		for field, value := range row {
			clone[field] = value
		}
		out[i] = clone
	}
	return out
}

// Summary describes the dataset without its rows.
func (d *Dataset) Summary() DatasetSummary {
	return DatasetSummary{ID: d.ID, Kind: d.Kind, NumRows: len(d.Rows)}
}

// DatasetSummary is the list view of a dataset.
type DatasetSummary struct {
	ID      string      `json:"id"`
	Kind    DatasetKind `json:"kind"`
	NumRows int         `json:"numRows"`
}
