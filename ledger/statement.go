package ledger

import (
	"sort"
	"time"
)

// SortOrder orders a statement by transaction time.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// StatementFilter narrows a history before sorting and paging. The
// zero value matches everything; conditions compose with AND. Start
// and End bounds are inclusive.
type StatementFilter struct {
	Type  Type
	Start *time.Time
	End   *time.Time
}

func (f StatementFilter) matches(tx Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Start != nil && tx.DateTime.Before(*f.Start) {
		return false
	}
	if f.End != nil && tx.DateTime.After(*f.End) {
		return false
	}
	return true
}

// Statement filters, sorts and paginates a transaction history for
// display. It is a pure function of its inputs and recomputed whenever
// any of them changes.
//
// page is 1-based and totalPages = ceil(filtered/pageSize). The
// function does not reject out-of-range pages; clamping is the
// caller's job (session navigation never requests an invalid page). A
// page beyond the filtered set simply comes back empty. Ties on equal
// timestamps keep their relative order.
func Statement(history []Transaction, f StatementFilter, order SortOrder, page, pageSize int) ([]Transaction, int) {
	if pageSize < 1 {
		pageSize = 1
	}

	filtered := make([]Transaction, 0, len(history))
	for _, tx := range history {
		if f.matches(tx) {
			filtered = append(filtered, tx)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if order == SortAsc {
			return filtered[i].DateTime.Before(filtered[j].DateTime)
		}
		return filtered[j].DateTime.Before(filtered[i].DateTime)
	})

	totalPages := (len(filtered) + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start < 0 || start >= len(filtered) {
		return nil, totalPages
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], totalPages
}
