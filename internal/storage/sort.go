package storage

import (
	"sort"
	"strings"
)

// SortRows sorts by a whitelisted column; ties keep a stable order by id.
func SortRows(rows []ReportRow, sortBy string, desc bool) {
	less := func(a, b ReportRow) int {
		switch sortBy {
		case SortUpdatedAt:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortAnnualSavings:
			return cmpFloat(a.AnnualSavings, b.AnnualSavings)
		case SortMonthlySavings:
			return cmpFloat(a.MonthlySavings, b.MonthlySavings)
		case SortCO2Savings:
			return cmpFloat(a.CO2Savings, b.CO2Savings)
		case SortScore:
			return a.Score - b.Score
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c := less(rows[i], rows[j])
		if c == 0 {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsSortKey reports whether k is one of the whitelisted sort columns.
func IsSortKey(k string) bool {
	switch k {
	case SortCreatedAt, SortUpdatedAt, SortTitle, SortAnnualSavings, SortMonthlySavings, SortCO2Savings, SortScore:
		return true
	}
	return false
}
