package validation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/validation"
)

type color string

func (c color) Valid() bool { return c == "red" || c == "blue" }

type draft struct {
	Title  string `json:"title" validate:"required"`
	Year   *int   `json:"year,omitempty" validate:"omitempty,gte=1970,pastyear"`
	Color  color  `json:"color" validate:"required,valid"`
	Rating string `json:"rating,omitempty"`
	Region string `json:"region,omitempty" validate:"required_with=Rating"`
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
	d, ok := domainErr.Details.(map[string]string)
	require.True(t, ok)
	return d
}

func intPtr(v int) *int { return &v }

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.Validate(draft{Title: "Chrono Trigger", Year: intPtr(1995), Color: "red"}))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()
	next := time.Now().Year() + 1

	tests := []struct {
		name      string
		in        draft
		wantField string
	}{
		{name: "missing title", in: draft{Color: "red"}, wantField: "title"},
		{name: "year too early", in: draft{Title: "x", Year: intPtr(1969), Color: "red"}, wantField: "year"},
		{name: "year in future", in: draft{Title: "x", Year: intPtr(next), Color: "red"}, wantField: "year"},
		{name: "invalid enum", in: draft{Title: "x", Color: "green"}, wantField: "color"},
		{name: "rating without region", in: draft{Title: "x", Color: "red", Rating: "PEGI 3"}, wantField: "region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			require.Error(t, err)
			assert.Contains(t, details(t, err), tt.wantField)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestValidator_SetMessage(t *testing.T) {
	v := validation.New()
	v.SetMessage("title", "required", "Product title is required")

	err := v.Validate(draft{Color: "blue"})
	require.Error(t, err)
	assert.Equal(t, "Product title is required", details(t, err)["title"])
	assert.Contains(t, err.Error(), "Product title is required")
}

func TestValidator_ValidateChanges(t *testing.T) {
	v := validation.New()
	rules := map[string]string{
		"title": "required",
		"color": "required,valid",
	}

	assert.NoError(t, v.ValidateChanges(map[string]any{"notes": ""}, rules))
	assert.NoError(t, v.ValidateChanges(map[string]any{"title": "ok", "color": color("red")}, rules))

	err := v.ValidateChanges(map[string]any{"title": "", "color": color("green")}, rules)
	require.Error(t, err)
	d := details(t, err)
	assert.Contains(t, d, "title")
	assert.Contains(t, d, "color")
}
