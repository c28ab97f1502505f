package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/campus-insight/internal/models"
)

type bucket struct {
	keys tuple
	rows []models.Row
}

// groupAndApply partitions rows by the GROUP key tuple and collapses each
// bucket into one tuple of group values plus APPLY outputs. Buckets are
// emitted in the order their first row was seen.
func groupAndApply(rows []models.Row, transform *Transform) []tuple {
	index := make(map[string]*bucket)
	order := make([]*bucket, 0)
	for _, row := range rows {
		key := groupKey(row, transform.Group)
		b, ok := index[key]
		if !ok {
			b = &bucket{keys: make(tuple, len(transform.Group))}
			for _, ref := range transform.Group {
				b.keys[ref.Key] = ref.valueOf(row)
			}
			index[key] = b
			order = append(order, b)
		}
		b.rows = append(b.rows, row)
	}

	out := make([]tuple, 0, len(order))
	for _, b := range order {
		t := make(tuple, len(b.keys)+len(transform.Apply))
		for k, v := range b.keys {
			t[k] = v
		}
		for _, rule := range transform.Apply {
			t[rule.Key] = aggregate(rule, b.rows)
		}
		out = append(out, t)
	}
	return out
}

// groupKey encodes the tuple of group values so equal tuples collide and
// distinct ones never do: numbers by canonical float bits, strings length-prefixed.
func groupKey(row models.Row, group []FieldRef) string {
	var sb strings.Builder
	for _, ref := range group {
		v := ref.valueOf(row)
		switch v.Type() {
		case models.FieldNumber:
			n := v.Number()
			if n == 0 {
				n = 0 // fold -0 into 0
			}
			sb.WriteByte('n')
			sb.WriteString(strconv.FormatUint(math.Float64bits(n), 16))
		case models.FieldString:
			sb.WriteByte('s')
			sb.WriteString(strconv.Itoa(len(v.Str())))
			sb.WriteByte(':')
			sb.WriteString(v.Str())
		default:
			sb.WriteByte('z')
		}
		sb.WriteByte('|')
	}
	return sb.String()
}

func aggregate(rule ApplyRule, rows []models.Row) models.Value {
	switch rule.Op {
	case AggregateMax:
		best := math.Inf(-1)
		for _, row := range rows {
			best = math.Max(best, rule.Field.valueOf(row).Number())
		}
		return models.NumberValue(best)
	case AggregateMin:
		best := math.Inf(1)
		for _, row := range rows {
			best = math.Min(best, rule.Field.valueOf(row).Number())
		}
		return models.NumberValue(best)
	case AggregateSum:
		return models.NumberValue(sum(rule.Field, rows).Round(2).InexactFloat64())
	case AggregateAvg:
		avg := sum(rule.Field, rows).Div(decimal.NewFromInt(int64(len(rows))))
		return models.NumberValue(avg.Round(2).InexactFloat64())
	case AggregateCount:
		distinct := make(map[models.Value]struct{}, len(rows))
		for _, row := range rows {
			distinct[rule.Field.valueOf(row)] = struct{}{}
		}
		return models.NumberValue(float64(len(distinct)))
	}
	return models.Value{}
}

// sum accumulates exactly in decimal; rounding happens once on the caller's
// final value.
func sum(field FieldRef, rows []models.Row) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(decimal.NewFromFloat(field.valueOf(row).Number()))
	}
	return total
}
