package table

import "slices"

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// DefaultPageSize is used when a state is created without one.
const DefaultPageSize = 10

// State is everything a user controls on a table. Reducers return a new State and
// never modify the receiver, so a State can be shared between requests.
type State struct {
	Search   string              `json:"search"`
	Filters  map[string][]string `json:"filters"`
	SortBy   string              `json:"sort_by"`
	SortDir  Direction           `json:"sort_dir"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// NewState returns the first page sorted ascending by sortBy.
func NewState(sortBy string, pageSize int) State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return State{SortBy: sortBy, SortDir: Asc, Page: 1, PageSize: pageSize}
}

// ToggleSort sorts by key. Sorting by the current key flips the direction; a new key
// starts ascending.
func (s State) ToggleSort(key string) State {
	if key == s.SortBy {
		if s.SortDir == Asc {
			s.SortDir = Desc
		} else {
			s.SortDir = Asc
		}
		return s
	}
	s.SortBy = key
	s.SortDir = Asc
	return s
}

// WithPageSize changes the page size and moves to the page that holds the first
// row of the current page, so the rows in view stay in view.
func (s State) WithPageSize(size int) State {
	if size <= 0 || size == s.PageSize {
		return s
	}
	start := s.start()
	s.PageSize = size
	s.Page = start/size + 1
	return s
}

// WithPage moves to page p (1-based).
func (s State) WithPage(p int) State {
	if p < 1 {
		p = 1
	}
	s.Page = p
	return s
}

// WithSearch sets the search term and returns to the first page.
func (s State) WithSearch(term string) State {
	s.Search = term
	s.Page = 1
	return s
}

// WithFilter sets the selected values of one facet and returns to the first page.
// An empty values clears the facet.
func (s State) WithFilter(key string, values []string) State {
	filters := make(map[string][]string, len(s.Filters)+1)
	for k, v := range s.Filters {
		filters[k] = v
	}
	if len(values) == 0 {
		delete(filters, key)
	} else {
		filters[key] = slices.Clone(values)
	}
	s.Filters = filters
	s.Page = 1
	return s
}

// ClearFilters removes every facet selection.
func (s State) ClearFilters() State {
	s.Filters = nil
	s.Page = 1
	return s
}

func (s State) start() int {
	page, size := s.Page, s.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return (page - 1) * size
}
