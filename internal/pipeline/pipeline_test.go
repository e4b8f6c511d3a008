package pipeline

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	step := func(name string, err error) Step {
		return Step{Name: name, Run: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}
	boom := errors.New("boom")

	err := Run(context.Background(),
		step("update", nil),
		step("status", boom),
		step("tags", nil),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	name, ok := FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, "status", name)
	assert.Equal(t, []string{"update", "status"}, ran)
}

func TestRun_SkipsEmptySteps(t *testing.T) {
	count := 0
	inc := Step{Name: "inc", Run: func(context.Context) error { count++; return nil }}

	require.NoError(t, Run(context.Background(), inc, When(false, inc), Step{Name: "noop"}, When(true, inc)))
	assert.Equal(t, 2, count)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, Step{Name: "first", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThen(t *testing.T) {
	ctx := context.Background()
	first := func(context.Context) (int, error) { return 41, nil }

	got, err := Then(ctx, first, "format", func(_ context.Context, n int) (string, error) {
		return strconv.Itoa(n + 1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	_, err = Then(ctx, first, "format", func(context.Context, int) (string, error) {
		return "", errors.New("nope")
	})
	name, _ := FailedStep(err)
	assert.Equal(t, "format", name)

	failing := func(context.Context) (int, error) { return 0, errors.New("first failed") }
	_, err = Then(ctx, failing, "format", func(context.Context, int) (string, error) {
		t.Fatal("must not run")
		return "", nil
	})
	assert.EqualError(t, err, "first failed")
}
