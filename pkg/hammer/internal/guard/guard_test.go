package guard_test

import (
	"errors"
	"testing"

	"github.com/argus-labs/sledgehammer/pkg/hammer/internal/guard"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	t.Parallel()

	t.Run("returns nil on success", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, guard.Call(func() error { return nil }))
	})

	t.Run("passes errors through", func(t *testing.T) {
		t.Parallel()
		want := errors.New("boom")
		assert.ErrorIs(t, guard.Call(func() error { return want }), want)
	})

	t.Run("recovers panic values", func(t *testing.T) {
		t.Parallel()
		err := guard.Call(func() error { panic("kaboom") })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
		assert.Contains(t, eris.ToString(err, true), "guard_test")
	})

	t.Run("recovers panic errors", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("nil map")
		err := guard.Run(func() { panic(cause) })
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
	})
}

func TestComparable(t *testing.T) {
	t.Parallel()

	type named struct{ id string }
	assert.True(t, guard.Comparable(&named{}))
	assert.True(t, guard.Comparable(named{id: "a"}))
	assert.False(t, guard.Comparable(nil))
	assert.False(t, guard.Comparable([]string{"a"}))
	assert.False(t, guard.Comparable(map[string]int{}))
	assert.False(t, guard.Comparable(func() {}))
}
