// Package comm 提供进程组通信抽象与两种实现:
// 单进程多 goroutine 的 channel 组,以及 rank 0 作为 hub 的 TCP 组。
// 统计引擎只依赖 Communicator 接口,由调用方注入;nil 通信器表示串行。
package comm

// ReduceOp 两两归并函数,root 按 rank 升序依次调用 op(acc, incoming)
type ReduceOp func(a, b any) (any, error)

// Communicator 进程组通信能力。所有调用都是阻塞语义,没有超时:
// 对端卡住则整个 collect 卡住(可靠通信由外部保证)。
type Communicator interface {
	Rank() int
	Size() int

	// Send/Recv 不定长对象的点对点传输,对象经 msgpack 封包后按帧发送
	Send(v any, dest int) error
	Recv(source int) (any, error)

	// SendFloat64s/RecvFloat64s 定长数值缓冲区的点对点传输,
	// 接收方负责预分配缓冲区并以其长度为准
	SendFloat64s(buf []float64, dest int) error
	RecvFloat64s(buf []float64, source int) error

	// Bcast 把 root 处的 v 广播给所有 rank,每个 rank 返回同一值
	Bcast(v any, root int) (any, error)
	// BcastFloat64s 原地广播:root 的 buf 写进其余 rank 的 buf
	BcastFloat64s(buf []float64, root int) error

	// ReduceFloat64s 按元素求和,结果按 rank 升序原地累进 root 的 buf;
	// 非 root 的 buf 不变
	ReduceFloat64s(buf []float64, root int) error
	AllReduceFloat64s(buf []float64) error

	// Reduce 不定长对象的归并;root 返回归并结果,非 root 返回 nil
	Reduce(v any, op ReduceOp, root int) (any, error)
	AllReduce(v any, op ReduceOp) (any, error)
}
