package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parstats/sparse"
)

func TestDenseBasics(t *testing.T) {
	v := NewDense(4)
	v.Set(1, 2)
	v.Add(1, 3)
	assert.Equal(t, 5.0, v.Get(1))
	assert.Equal(t, 4, v.Size())
	assert.Equal(t, []float64{0, 5, 0, 0}, v.ToDense())

	// dense 的 ForEach 走全长
	var seen []int
	v.ForEach(func(i int, _ float64) bool {
		seen = append(seen, i)
		return true
	})
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestSparseBasics(t *testing.T) {
	v := NewSparse(4)
	v.Set(1, 2)
	v.Add(1, 3)
	v.Add(3, 1)
	assert.Equal(t, 5.0, v.Get(1))
	assert.Equal(t, []float64{0, 5, 0, 1}, v.ToDense())

	// sparse 的 ForEach 只走已赋值下标
	n := 0
	v.ForEach(func(_ int, _ float64) bool {
		n++
		return true
	})
	assert.Equal(t, 2, n)
}

func TestDiv(t *testing.T) {
	num := NewDense(3)
	den := NewDense(3)
	num.Set(0, 6)
	den.Set(0, 2)
	den.Set(1, 5)
	q := num.Div(den)
	assert.Equal(t, 3.0, q.Get(0))
	assert.Equal(t, 0.0, q.Get(1))
	// 0/0 按 IEEE 落 NaN
	assert.True(t, math.IsNaN(q.Get(2)))

	snum := NewSparse(3)
	sden := NewSparse(3)
	snum.Set(0, 6)
	sden.Set(0, 2)
	sq := snum.Div(sden)
	assert.Equal(t, 3.0, sq.Get(0))
	// sparse 的商只在分子的下标集合上有键
	a, ok := AsSparse(sq)
	require.True(t, ok)
	assert.Equal(t, 1, a.CountNonzero())
}

func TestWrappers(t *testing.T) {
	buf := []float64{1, 2, 3}
	v := FromSlice(buf)
	v.Set(0, 9)
	// FromSlice 直接包底层缓冲区,不拷贝
	assert.Equal(t, 9.0, buf[0])

	d, ok := AsDense(v)
	require.True(t, ok)
	assert.Equal(t, buf, d)
	_, ok = AsSparse(v)
	assert.False(t, ok)

	sa := sparse.New(5)
	require.NoError(t, sa.Set(2, 7))
	sv := FromSparse(sa)
	assert.Equal(t, 7.0, sv.Get(2))
	back, ok := AsSparse(sv)
	require.True(t, ok)
	assert.Same(t, sa, back)
}
