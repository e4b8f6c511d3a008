package api

import (
	"context"
	"math"
	"strings"

	"github.com/collectr/collectr/internal/domain"
	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/relation"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/service"
	"github.com/collectr/collectr/internal/table"
)

// TableInput holds the table view parameters shared by list endpoints.
type TableInput struct {
	Search   string   `query:"search" doc:"Case-insensitive search; every term must match"`
	Sort     string   `query:"sort" doc:"Column to sort by"`
	Dir      string   `query:"dir" enum:"asc,desc" default:"asc" doc:"Sort direction"`
	Page     int      `query:"page" default:"1" minimum:"1" doc:"Page number (1-based)"`
	PageSize int      `query:"page_size" default:"10" minimum:"1" maximum:"1000" doc:"Rows per page"`
	Filters  []string `query:"filter,explode" doc:"Facet selections as key:value; repeat for more values"`
}

// state turns the parameters into a table state, rejecting unsortable columns.
func state[T any](e *table.Engine[T], in TableInput, defaultSort string) (table.State, error) {
	sortBy := in.Sort
	if sortBy == "" {
		sortBy = defaultSort
	}
	if !e.Sortable(sortBy) {
		return table.State{}, domainerrors.ValidationWithDetails("validation failed: unsortable column",
			map[string]string{"sort": "Cannot sort by " + sortBy})
	}

	st := table.NewState(sortBy, in.PageSize)
	if in.Dir == string(table.Desc) {
		st.SortDir = table.Desc
	}
	if in.Search != "" {
		st = st.WithSearch(in.Search)
	}

	grouped := map[string][]string{}
	var order []string
	for _, f := range in.Filters {
		key, value, ok := strings.Cut(f, ":")
		if !ok || key == "" {
			return table.State{}, domainerrors.ValidationWithDetails("validation failed: malformed filter",
				map[string]string{"filter": "Filters are written key:value"})
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], value)
	}
	for _, key := range order {
		st = st.WithFilter(key, grouped[key])
	}

	return st.WithPage(in.Page), nil
}

// changesOf converts a decoded JSON patch into a row. JSON numbers without a
// fraction become integers so id and year columns bind as integers.
func changesOf(body map[string]any) remote.Row {
	row := make(remote.Row, len(body))
	for k, v := range body {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			v = int64(f)
		}
		row[k] = v
	}
	return row
}

// TagSelection is one tag an entity should carry.
type TagSelection struct {
	TagID int64  `json:"tag_id" minimum:"1" doc:"Tag ID"`
	Value string `json:"value,omitempty" doc:"Value for set and text tags"`
}

// SetTagsRequest is the complete desired tag selection of an entity.
type SetTagsRequest struct {
	Tags []TagSelection `json:"tags" doc:"Desired tags; tags not listed are removed"`
}

// TagsResponse is the selection of an entity and what was sent to reach it.
type TagsResponse struct {
	Tags    relation.Selection `json:"tags" doc:"Tag values by tag ID"`
	Applied *relation.Changes  `json:"applied,omitempty" doc:"Edge operations sent"`
}

// TagsOutput wraps the tags response for Huma.
type TagsOutput struct {
	Body TagsResponse
}

// setTags reconciles the stored tags of entityID with the desired selection.
func setTags(ctx context.Context, tags *service.TagService, entityID int64, desired []TagSelection) (*TagsOutput, error) {
	sel, err := tags.Selector(ctx, entityID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(desired))
	want := make(map[int64]bool, len(desired))
	for _, d := range desired {
		ids = append(ids, d.TagID)
		want[d.TagID] = true
	}
	defs, err := tags.Resolve(ctx, ids...)
	if err != nil {
		return nil, err
	}

	for tagID := range sel.Selected() {
		if !want[tagID] {
			sel.Deselect(tagID)
		}
	}
	for _, d := range desired {
		if err := sel.SetValue(defs[d.TagID], d.Value); err != nil {
			return nil, err
		}
	}

	changes := sel.Changes()
	if err := sel.ApplyChanges(ctx); err != nil {
		return nil, err
	}
	return &TagsOutput{Body: TagsResponse{Tags: sel.Selected(), Applied: &changes}}, nil
}

func getTags(ctx context.Context, tags *service.TagService, entityID int64) (*TagsOutput, error) {
	sel, err := tags.Selector(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return &TagsOutput{Body: TagsResponse{Tags: sel.Selected()}}, nil
}

// IDInput identifies an entity by its path id.
type IDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Entity ID"`
}

// PatchInput carries a partial update of an entity.
type PatchInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Entity ID"`
	Body map[string]any
}

// SetTagsInput carries the desired tags of an entity.
type SetTagsInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Entity ID"`
	Body SetTagsRequest
}

// TagScopeInput selects the product or inventory tag set.
type TagScopeInput struct {
	Scope domain.TagScope `path:"scope" enum:"product,inventory" doc:"Tag scope"`
}
