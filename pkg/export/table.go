package export

import (
	"fmt"
	"strconv"
)

// Table is tabular export content: a header row and positional cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// TableFromRecords lays keyed records out under the given columns. Missing
// keys render as empty cells.
func TableFromRecords(columns []string, records []map[string]any) Table {
	rows := make([][]string, len(records))
	for i, record := range records {
		cells := make([]string, len(columns))
		for j, col := range columns {
			if v, ok := record[col]; ok {
				cells[j] = FormatCell(v)
			}
		}
		rows[i] = cells
	}
	return Table{Columns: columns, Rows: rows}
}

// FormatCell renders a result value as text. Numbers use the shortest
// representation that round-trips, so 85 prints as "85" and 85.5 as "85.5".
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
