package comm

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parstats/sparse"
)

// runRanks 每个 rank 一个 goroutine,跑完再汇合
func runRanks(t *testing.T, ranks []*Local, body func(rank int, c *Local)) {
	t.Helper()
	var wg sync.WaitGroup
	for r, c := range ranks {
		wg.Add(1)
		go func(rank int, c *Local) {
			defer wg.Done()
			body(rank, c)
		}(r, c)
	}
	wg.Wait()
}

func TestLocalGroupBasics(t *testing.T) {
	_, err := NewLocalGroup(0)
	require.Error(t, err)

	ranks, err := NewLocalGroup(3)
	require.NoError(t, err)
	require.Len(t, ranks, 3)
	for r, c := range ranks {
		assert.Equal(t, r, c.Rank())
		assert.Equal(t, 3, c.Size())
	}

	// 自己发自己、越界 rank 均拒绝
	require.Error(t, ranks[0].Send(1.0, 0))
	require.Error(t, ranks[0].Send(1.0, 3))
	_, err = ranks[1].Recv(-1)
	require.Error(t, err)
}

func TestLocalSendRecv(t *testing.T) {
	ranks, err := NewLocalGroup(2)
	require.NoError(t, err)

	a := sparse.New(8)
	require.NoError(t, a.Set(5, 2.5))

	runRanks(t, ranks, func(rank int, c *Local) {
		if rank == 0 {
			require.NoError(t, c.Send(a, 1))
			require.NoError(t, c.SendFloat64s([]float64{1, 2, 3}, 1))
			return
		}
		v, err := c.Recv(0)
		require.NoError(t, err)
		got, ok := v.(*sparse.Array)
		require.True(t, ok)
		assert.Equal(t, 2.5, got.Get(5))

		buf := make([]float64, 3)
		require.NoError(t, c.RecvFloat64s(buf, 0))
		assert.Equal(t, []float64{1, 2, 3}, buf)
	})
}

func TestLocalBcast(t *testing.T) {
	ranks, err := NewLocalGroup(3)
	require.NoError(t, err)

	got := make([]float64, 3)
	runRanks(t, ranks, func(rank int, c *Local) {
		v, err := c.Bcast(7.5, 1)
		require.NoError(t, err)
		got[rank] = v.(float64)

		buf := []float64{0, 0}
		if rank == 1 {
			buf = []float64{4, 5}
		}
		require.NoError(t, c.BcastFloat64s(buf, 1))
		assert.Equal(t, []float64{4, 5}, buf, "rank %d", rank)
	})
	assert.Equal(t, []float64{7.5, 7.5, 7.5}, got)
}

func TestLocalReduceFloat64s(t *testing.T) {
	ranks, err := NewLocalGroup(4)
	require.NoError(t, err)

	bufs := make([][]float64, 4)
	runRanks(t, ranks, func(rank int, c *Local) {
		buf := []float64{float64(rank), 1}
		require.NoError(t, c.ReduceFloat64s(buf, 0))
		bufs[rank] = buf
	})
	assert.Equal(t, []float64{6, 4}, bufs[0])

	runRanks(t, ranks, func(rank int, c *Local) {
		buf := []float64{float64(rank), 1}
		require.NoError(t, c.AllReduceFloat64s(buf))
		assert.Equal(t, []float64{6, 4}, buf, "rank %d", rank)
	})
}

func TestLocalReduceOrder(t *testing.T) {
	ranks, err := NewLocalGroup(3)
	require.NoError(t, err)

	// 用非交换的 op 验证归并按 rank 升序进行
	concat := func(a, b any) (any, error) {
		return a.(float64)*10 + b.(float64), nil
	}
	var got any
	runRanks(t, ranks, func(rank int, c *Local) {
		acc, err := c.Reduce(float64(rank+1), concat, 0)
		require.NoError(t, err)
		if rank == 0 {
			got = acc
		} else {
			assert.Nil(t, acc)
		}
	})
	// ((1*10+2)*10+3)
	assert.Equal(t, 123.0, got)
}

func TestLocalAllReduce(t *testing.T) {
	ranks, err := NewLocalGroup(3)
	require.NoError(t, err)

	sum := func(a, b any) (any, error) { return a.(float64) + b.(float64), nil }
	got := make([]any, 3)
	runRanks(t, ranks, func(rank int, c *Local) {
		v, err := c.AllReduce(float64(rank), sum)
		require.NoError(t, err)
		got[rank] = v
	})
	for r, v := range got {
		assert.Equal(t, 3.0, v, fmt.Sprintf("rank %d", r))
	}
}

func TestSingleRankGroup(t *testing.T) {
	ranks, err := NewLocalGroup(1)
	require.NoError(t, err)
	c := ranks[0]

	v, err := c.Bcast(1.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	buf := []float64{2}
	require.NoError(t, c.ReduceFloat64s(buf, 0))
	assert.Equal(t, []float64{2}, buf)
}
