package remote

import (
	"context"
	"fmt"
)

// DefaultPageSize is the number of rows FetchAll asks for per round trip.
const DefaultPageSize = 1000

// FetchAll reads every row matching q by counting first and then requesting
// consecutive ranges of pageSize rows. q's own Limit and Offset are ignored.
func FetchAll(ctx context.Context, s Store, table string, q Query, pageSize int) ([]Row, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total, err := s.Count(ctx, table, q.Filters...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}

	rows := make([]Row, 0, total)
	for from := 0; from < total; from += pageSize {
		page, err := s.Select(ctx, table, q.Range(from, from+pageSize-1))
		if err != nil {
			return nil, fmt.Errorf("fetch %s rows %d-%d: %w", table, from, from+pageSize-1, err)
		}
		rows = append(rows, page...)
		if len(page) < pageSize {
			break
		}
	}
	return rows, nil
}
