package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/mutation"
)

func (s *Server) registerTagRoutes() {
	register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{scope}",
		Summary:     "List tags",
		Description: "Returns the tag definitions of a scope with their usage counts",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	register(s.api, huma.Operation{
		OperationID:   "createTag",
		Method:        http.MethodPost,
		Path:          "/api/v1/tags/{scope}",
		Summary:       "Create tag",
		Tags:          []string{"Tags"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateTag)

	register(s.api, huma.Operation{
		OperationID: "getTag",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{scope}/{id}",
		Summary:     "Get tag",
		Tags:        []string{"Tags"},
	}, s.handleGetTag)

	register(s.api, huma.Operation{
		OperationID: "updateTag",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tags/{scope}/{id}",
		Summary:     "Update tag",
		Description: "Type and values of a tag in use cannot change; a rename is allowed",
		Tags:        []string{"Tags"},
	}, s.handleUpdateTag)

	register(s.api, huma.Operation{
		OperationID:   "deleteTag",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tags/{scope}/{id}",
		Summary:       "Delete tag",
		Tags:          []string{"Tags"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteTag)
}

// === DTOs ===

// CreateTagRequest is the request body for creating a tag.
type CreateTagRequest struct {
	Name         string   `json:"name,omitempty" doc:"Tag name"`
	Description  *string  `json:"description,omitempty" doc:"Description"`
	Type         string   `json:"tag_type,omitempty" doc:"bool, set or text"`
	Values       []string `json:"tag_values,omitempty" doc:"Allowed values of a set tag"`
	DisplayType  string   `json:"display_type,omitempty" doc:"icon, text or image"`
	DisplayValue string   `json:"display_value,omitempty" doc:"Icon name, label or image URL"`
	ProductTypes []string `json:"product_types,omitempty" doc:"Product types the tag applies to; empty for all"`
	ShowInTable  bool     `json:"show_in_table,omitempty" doc:"Whether the tag is shown as a table column"`
}

// CreateTagInput wraps the create tag request for Huma.
type CreateTagInput struct {
	TagScopeInput
	Body CreateTagRequest
}

// TagInput identifies one tag of a scope.
type TagInput struct {
	TagScopeInput
	ID int64 `path:"id" minimum:"1" doc:"Tag ID"`
}

// UpdateTagInput carries a partial update of a tag.
type UpdateTagInput struct {
	TagScopeInput
	ID   int64 `path:"id" minimum:"1" doc:"Tag ID"`
	Body map[string]any
}

// TagOutput wraps a tag for Huma.
type TagOutput struct {
	Body domain.Tag
}

// TagListOutput wraps a list of tags for Huma.
type TagListOutput struct {
	Body []domain.Tag
}

// === Handlers ===

func (s *Server) handleListTags(ctx context.Context, input *TagScopeInput) (*TagListOutput, error) {
	tags, err := s.services.Collections.Tags(input.Scope).Load(ctx)
	if err != nil {
		return nil, mutation.Classify(err)
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	return &TagListOutput{Body: tags}, nil
}

func (s *Server) handleCreateTag(ctx context.Context, input *CreateTagInput) (*TagOutput, error) {
	b := input.Body
	tag, err := s.services.Tags(input.Scope).Create(ctx, domain.TagDraft{
		Name:         b.Name,
		Description:  b.Description,
		Type:         domain.TagType(b.Type),
		Values:       b.Values,
		DisplayType:  b.DisplayType,
		DisplayValue: b.DisplayValue,
		ProductTypes: b.ProductTypes,
		ShowInTable:  b.ShowInTable,
	})
	if err != nil {
		return nil, err
	}
	return &TagOutput{Body: tag}, nil
}

func (s *Server) handleGetTag(ctx context.Context, input *TagInput) (*TagOutput, error) {
	tag, err := s.services.Tags(input.Scope).Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &TagOutput{Body: tag}, nil
}

func (s *Server) handleUpdateTag(ctx context.Context, input *UpdateTagInput) (*TagOutput, error) {
	tag, err := s.services.Tags(input.Scope).Update(ctx, input.ID, changesOf(input.Body))
	if err != nil {
		return nil, err
	}
	return &TagOutput{Body: tag}, nil
}

func (s *Server) handleDeleteTag(ctx context.Context, input *TagInput) (*struct{}, error) {
	return nil, s.services.Tags(input.Scope).Delete(ctx, input.ID)
}
