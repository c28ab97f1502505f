package query

import "sort"

// sortTuples applies ORDER with a stable sort: earlier keys dominate, later
// keys break ties, and rows still tied keep their relative order.
func sortTuples(rows []tuple, order *Order) {
	if order == nil || len(order.Keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range order.Keys {
			c := rows[i][key].Compare(rows[j][key])
			if c == 0 {
				continue
			}
			if order.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
