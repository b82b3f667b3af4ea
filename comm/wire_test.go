package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parstats/sparse"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := marshal(v)
	require.NoError(t, err)
	out, err := unmarshal(b)
	require.NoError(t, err)
	return out
}

func TestWireScalarsAndBuffers(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, -3}, roundTrip(t, []float64{1, 2.5, -3}))
	assert.Equal(t, 1.5, roundTrip(t, 1.5))
	assert.Equal(t, 42, roundTrip(t, 42))
}

func TestWireSparse(t *testing.T) {
	a := sparse.New(10)
	require.NoError(t, a.Set(3, 1.5))
	require.NoError(t, a.Set(7, -2))

	out := roundTrip(t, a)
	b, ok := out.(*sparse.Array)
	require.True(t, ok)
	assert.Equal(t, 10, b.Size())
	inds, vals := b.ToArrays()
	assert.Equal(t, []int{3, 7}, inds)
	assert.Equal(t, []float64{1.5, -2}, vals)
}

func TestWireList(t *testing.T) {
	a := sparse.New(4)
	require.NoError(t, a.Set(1, 9))

	out := roundTrip(t, []any{[]float64{1, 2}, 3.0, a})
	list, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, []float64{1, 2}, list[0])
	assert.Equal(t, 3.0, list[1])
	back, ok := list[2].(*sparse.Array)
	require.True(t, ok)
	assert.Equal(t, 9.0, back.Get(1))
}

func TestWireUnsupported(t *testing.T) {
	_, err := marshal(struct{}{})
	require.Error(t, err)
	_, err = marshal([]any{"nope"})
	require.Error(t, err)
}
