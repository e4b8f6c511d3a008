package domain

import "time"

// TagScope says which entity a tag family applies to. Product and inventory tags are
// structurally identical and live in separate tables.
type TagScope string

// Tag scopes.
const (
	ScopeProduct   TagScope = "product"
	ScopeInventory TagScope = "inventory"
)

// Table returns the table holding the scope's tag definitions.
func (s TagScope) Table() string {
	return string(s) + "_tags"
}

// View returns the view serving tag definitions with their usage counts.
func (s TagScope) View() string {
	return "view_" + string(s) + "_tags"
}

// RelationshipTable returns the table holding (entity, tag) edges.
func (s TagScope) RelationshipTable() string {
	return string(s) + "_tag_relationships"
}

// OwnerColumn returns the edge column referencing the tagged entity.
func (s TagScope) OwnerColumn() string {
	return string(s) + "_id"
}

// TagType says whether and how a tag carries a value.
type TagType string

// Tag types.
const (
	TagBoolean TagType = "boolean"
	TagSet     TagType = "set"
	TagText    TagType = "text"
)

// Valid reports whether t is a known tag type.
func (t TagType) Valid() bool {
	return t == TagBoolean || t == TagSet || t == TagText
}

// BooleanTagValue is the value stored on edges of boolean tags.
const BooleanTagValue = "true"

// Tag is a product or inventory tag definition.
type Tag struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Description        *string    `json:"description"`
	Type               TagType    `json:"tag_type"`
	Values             StringList `json:"tag_values"`
	DisplayType        string     `json:"display_type"`
	DisplayValue       string     `json:"display_value"`
	ProductTypes       StringList `json:"product_types"`
	ShowInTable        Flag       `json:"show_in_table"`
	RelationshipsCount int        `json:"relationships_count"`
	CreatedAt          time.Time  `json:"created_at"`
}

// AllowsValue reports whether value may be stored on an edge of this tag.
func (t Tag) AllowsValue(value string) bool {
	switch t.Type {
	case TagBoolean:
		return value == "" || value == BooleanTagValue
	case TagSet:
		return value == "" || t.Values.Contains(value)
	case TagText:
		return true
	default:
		return false
	}
}

// InUse reports whether any entity carries the tag. Type and permissible values are
// locked while it does.
func (t Tag) InUse() bool {
	return t.RelationshipsCount > 0
}

// TagDraft is the input for creating a tag.
type TagDraft struct {
	Name         string     `json:"name" validate:"required"`
	Description  *string    `json:"description,omitempty"`
	Type         TagType    `json:"tag_type" validate:"required,valid"`
	Values       StringList `json:"tag_values"`
	DisplayType  string     `json:"display_type" validate:"required,oneof=icon text image"`
	DisplayValue string     `json:"display_value" validate:"required"`
	ProductTypes StringList `json:"product_types"`
	ShowInTable  bool       `json:"show_in_table"`
}

// TagRelationship is an (entity, tag) edge with an optional value.
type TagRelationship struct {
	ID       int64   `json:"id"`
	EntityID int64   `json:"entity_id"`
	TagID    int64   `json:"tag_id"`
	Value    *string `json:"value"`
}
