package comm

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parstats/sparse"
)

// newTCPGroup 在回环地址上起一个 n 个 rank 的组
func newTCPGroup(t *testing.T, n int) []*TCP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ranks := make([]*TCP, n)
	var wg sync.WaitGroup
	for r := 1; r < n; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			c, err := DialTCP(addr, rank, n)
			require.NoError(t, err)
			ranks[rank] = c
		}(r)
	}
	hub, err := HubWithListener(ln, n)
	require.NoError(t, err)
	ranks[0] = hub
	wg.Wait()

	t.Cleanup(func() {
		for _, c := range ranks {
			c.Close()
		}
	})
	return ranks
}

func TestTCPSendRecv(t *testing.T) {
	ranks := newTCPGroup(t, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a := sparse.New(6)
		require.NoError(t, a.Set(4, -1.5))
		require.NoError(t, ranks[0].Send(a, 1))
		require.NoError(t, ranks[0].SendFloat64s([]float64{9, 8}, 1))
	}()
	go func() {
		defer wg.Done()
		v, err := ranks[1].Recv(0)
		require.NoError(t, err)
		got, ok := v.(*sparse.Array)
		require.True(t, ok)
		assert.Equal(t, -1.5, got.Get(4))

		buf := make([]float64, 2)
		require.NoError(t, ranks[1].RecvFloat64s(buf, 0))
		assert.Equal(t, []float64{9, 8}, buf)
	}()
	wg.Wait()
}

// 两个 peer 之间的点对点帧要经过 hub 转发
func TestTCPPeerForwarding(t *testing.T) {
	ranks := newTCPGroup(t, 3)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, ranks[1].SendFloat64s([]float64{1, 2, 3}, 2))
	}()
	go func() {
		defer wg.Done()
		buf := make([]float64, 3)
		require.NoError(t, ranks[2].RecvFloat64s(buf, 1))
		assert.Equal(t, []float64{1, 2, 3}, buf)
	}()
	wg.Wait()
}

func TestTCPCollectives(t *testing.T) {
	const n = 3
	ranks := newTCPGroup(t, n)

	var wg sync.WaitGroup
	sums := make([][]float64, n)
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			v, err := ranks[rank].Bcast(2.5, 0)
			require.NoError(t, err)
			assert.Equal(t, 2.5, v, "rank %d", rank)

			buf := []float64{float64(rank + 1)}
			require.NoError(t, ranks[rank].AllReduceFloat64s(buf))
			sums[rank] = buf
		}(r)
	}
	wg.Wait()
	for r := 0; r < n; r++ {
		assert.Equal(t, []float64{6}, sums[r])
	}
}

func TestTCPBadJoin(t *testing.T) {
	_, err := DialTCP("127.0.0.1:1", 0, 3)
	require.Error(t, err) // rank 0 不拨号
	_, err = DialTCP("127.0.0.1:1", 3, 3)
	require.Error(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, err = HubWithListener(ln, 1)
	require.Error(t, err)
}

func TestTCPCloseUnblocksRecv(t *testing.T) {
	ranks := newTCPGroup(t, 2)

	done := make(chan error, 1)
	go func() {
		_, err := ranks[1].Recv(0)
		done <- err
	}()
	ranks[0].Close()
	require.Error(t, <-done)
}
