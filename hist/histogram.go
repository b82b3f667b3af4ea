// Package hist 固定边界的并行直方图:分箱是对在线求和的薄封装,
// 合并走通信器的逐元素 reduce。
package hist

import (
	"iter"
	"math"

	"github.com/cockroachdb/errors"

	"parstats/comm"
)

// ErrCollected collect 是终结操作
var ErrCollected = errors.New("collect already called on this histogram")

// Histogram 按预先给定的升序边界做计数/加权计数。
// 落在全部边界之外的数据点直接丢弃,不报错。
type Histogram struct {
	edges  []float64
	counts []float64
}

// New 建一个直方图,edges 必须严格递增且至少两条,bin 数为 len(edges)-1
func New(edges []float64) (*Histogram, error) {
	if len(edges) < 2 {
		return nil, errors.Newf("need at least 2 edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, errors.Newf("edges must be strictly increasing, edges[%d]=%v edges[%d]=%v",
				i-1, edges[i-1], i, edges[i])
		}
	}
	h := &Histogram{
		edges:  append([]float64(nil), edges...),
		counts: make([]float64, len(edges)-1),
	}
	return h, nil
}

// NumBins bin 数
func (h *Histogram) NumBins() int { return len(h.edges) - 1 }

// Edges 边界副本
func (h *Histogram) Edges() []float64 {
	return append([]float64(nil), h.edges...)
}

// AddData 加一批数据,隐式全 1 权重
func (h *Histogram) AddData(values []float64) error {
	if h.counts == nil {
		return ErrCollected
	}
	n := h.NumBins()
	for _, v := range values {
		if b := Digitize(h.edges, v); b >= 0 && b < n {
			h.counts[b]++
		}
	}
	return nil
}

// AddWeightedData 加一批带权数据
func (h *Histogram) AddWeightedData(values, weights []float64) error {
	if len(values) != len(weights) {
		return errors.Newf("values/weights length mismatch: %d vs %d", len(values), len(weights))
	}
	if h.counts == nil {
		return ErrCollected
	}
	n := h.NumBins()
	for i, v := range values {
		if b := Digitize(h.edges, v); b >= 0 && b < n {
			h.counts[b] += weights[i]
		}
	}
	return nil
}

// Collect 终结并合并计数。串行时返回本地计数;
// 分布式时计数按元素求和到 rank 0,非 root 返回 nil。
func (h *Histogram) Collect(c comm.Communicator) ([]float64, error) {
	if h.counts == nil {
		return nil, ErrCollected
	}
	counts := h.counts
	h.counts = nil

	if c == nil || c.Size() == 1 {
		return counts, nil
	}
	if err := c.ReduceFloat64s(counts, 0); err != nil {
		return nil, err
	}
	if c.Rank() != 0 {
		return nil, nil
	}
	return counts, nil
}

// Chunk 一批待分箱的数据;Weights 为 nil 表示无权重
type Chunk struct {
	Values  []float64
	Weights []float64
}

// Run 喂完迭代器再 Collect
func (h *Histogram) Run(seq iter.Seq[Chunk], c comm.Communicator) ([]float64, error) {
	for ch := range seq {
		var err error
		if ch.Weights == nil {
			err = h.AddData(ch.Values)
		} else {
			err = h.AddWeightedData(ch.Values, ch.Weights)
		}
		if err != nil {
			return nil, err
		}
	}
	return h.Collect(c)
}

// LinspaceEdges 按数据最小最大值生成 nbins+1 条等宽边界。
// 末条边界往上挪一个 ulp,让最大值落进最后一个 bin。
func LinspaceEdges(data []float64, nbins int) ([]float64, error) {
	if len(data) == 0 || nbins <= 0 {
		return nil, errors.Newf("need data and a positive bin count, got %d values %d bins", len(data), nbins)
	}
	minV, maxV := data[0], data[0]
	for _, v := range data {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	// 避免 max == min 导致零宽
	if maxV == minV {
		maxV = minV + 1e-9
	}
	width := (maxV - minV) / float64(nbins)
	edges := make([]float64, nbins+1)
	for i := 0; i <= nbins; i++ {
		edges[i] = minV + float64(i)*width
	}
	edges[nbins] = math.Nextafter(maxV, math.Inf(1))
	return edges, nil
}
