// Package stats 实现按 bin 的单遍流式统计:
// 加权/无权的 Welford 在线更新,Chan/Schubert-Gertz 两两合并,
// 以及 sum/mean 两个只保留部分统计量的特化。
package stats

import (
	"iter"

	"github.com/cockroachdb/errors"

	"parstats/store"
)

// Mode collect 的合并模式
type Mode string

const (
	// Gather 合并结果只落在 rank 0,其余 rank 返回 nil
	Gather Mode = "gather"
	// AllGather 合并后广播,每个 rank 返回同一结果
	AllGather Mode = "allgather"
)

var (
	// ErrBadMode mode 不合法,在任何通信发生之前报出
	ErrBadMode = errors.New(`collect mode must be "gather" or "allgather"`)
	// ErrCollected collect 是终结操作,之后内部存储已释放
	ErrCollected = errors.New("collect already called on this accumulator")
	// ErrWeightsExpected 加权 accumulator 必须带权重喂数据
	ErrWeightsExpected = errors.New("weights expected in weighted accumulator")
	// ErrWeightsUnexpected 无权 accumulator 不接受权重
	ErrWeightsUnexpected = errors.New("no weights expected in unweighted accumulator")
)

// Options accumulator 配置面。
// Weighted 只对 MeanVariance 有意义,必须在构造时定死。
type Options struct {
	Size     int  `yaml:"size"`
	Sparse   bool `yaml:"sparse"`
	Weighted bool `yaml:"weighted"`
}

func (o Options) validate() error {
	if o.Size <= 0 {
		return errors.Newf("size must be positive, got %d", o.Size)
	}
	return nil
}

// newVec 构造之后各处不再区分存储后端
func newVec(o Options) store.Vector {
	if o.Sparse {
		return store.NewSparse(o.Size)
	}
	return store.NewDense(o.Size)
}

// Chunk 一批落在同一 bin 的数据点;Weights 为 nil 表示无权重
// (隐式全 1 权重不物化成数组)
type Chunk struct {
	Bin     int
	Values  []float64
	Weights []float64
}

type chunkAdder interface {
	AddData(bin int, values []float64) error
	AddWeightedData(bin int, values, weights []float64) error
}

func feed(a chunkAdder, seq iter.Seq[Chunk]) error {
	for ch := range seq {
		var err error
		if ch.Weights == nil {
			err = a.AddData(ch.Bin, ch.Values)
		} else {
			err = a.AddWeightedData(ch.Bin, ch.Values, ch.Weights)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
