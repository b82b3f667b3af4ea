package stats

import (
	"iter"

	"parstats/comm"
	"parstats/store"
)

// Mean 按 bin 的单遍均值计算器:组合 Sum,终结时用 sum/weight 推均值,
// 合并机制完全复用 Sum 的 reduce。weight==0 的 bin 均值按 0/0 落成 NaN。
type Mean struct {
	Sum
}

// NewMean 建一个均值计算器
func NewMean(size int, useSparse bool) (*Mean, error) {
	s, err := NewSum(size, useSparse)
	if err != nil {
		return nil, err
	}
	return &Mean{Sum: *s}, nil
}

// Collect 终结并合并,返回每 bin 的 (weight, mean)。
// gather 模式下非 root 返回 nil, nil。
func (p *Mean) Collect(c comm.Communicator, mode Mode) (weight, mean store.Vector, err error) {
	w, s, err := p.Sum.Collect(c, mode)
	if err != nil || w == nil {
		return w, s, err
	}
	return w, s.Div(w), nil
}

// Run 喂完迭代器再 Collect
func (p *Mean) Run(seq iter.Seq[Chunk], c comm.Communicator, mode Mode) (weight, mean store.Vector, err error) {
	if err := feed(p, seq); err != nil {
		return nil, nil, err
	}
	return p.Collect(c, mode)
}
