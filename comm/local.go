package comm

import (
	"github.com/cockroachdb/errors"

	"parstats/infra/logx"
)

// 点对点通道深度:collect 协议里一个 rank 在对端开始接收前最多压入
// 4 个状态数组,16 留足余量
const meshDepth = 16

// Local 单进程内的通信组:n 个 rank 跑在各自的 goroutine 里,
// 点对点帧走一张有缓冲的 channel 网格。测试与单机并行用,
// 角色相当于原型系统里的 mock-MPI。
type Local struct {
	group
	rank int
	n    int
	mesh [][]chan []byte // mesh[src][dst]
}

// NewLocalGroup 建一个 n 个 rank 的进程内通信组,返回每个 rank 各自的句柄
func NewLocalGroup(n int) ([]*Local, error) {
	if n < 1 {
		return nil, errors.Newf("group size must be at least 1, got %d", n)
	}
	mesh := make([][]chan []byte, n)
	for src := range mesh {
		mesh[src] = make([]chan []byte, n)
		for dst := range mesh[src] {
			if src != dst {
				mesh[src][dst] = make(chan []byte, meshDepth)
			}
		}
	}
	ranks := make([]*Local, n)
	for r := 0; r < n; r++ {
		l := &Local{rank: r, n: n, mesh: mesh}
		l.group = group{p2p: l}
		ranks[r] = l
	}
	logx.L().WithField("size", n).Debug("local comm group created")
	return ranks, nil
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.n }

func (l *Local) sendBytes(b []byte, dest int) error {
	l.mesh[l.rank][dest] <- b
	return nil
}

func (l *Local) recvBytes(source int) ([]byte, error) {
	return <-l.mesh[source][l.rank], nil
}
