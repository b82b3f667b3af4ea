package stats

import (
	"iter"

	"github.com/cockroachdb/errors"

	"parstats/comm"
	"parstats/sparse"
	"parstats/store"
)

// Sum 按 bin 的单遍求和器,只维护 (weight, sum) 两条统计量。
// 权重逐点可给可不给,不给按 1 计;没被命中的 bin 是 weight=0, sum=0。
// 合并不需要两两公式,纯逐元素求和,直接走通信器的 reduce。
type Sum struct {
	size   int
	sparse bool

	weight store.Vector
	sum    store.Vector
}

// NewSum 建一个求和器
func NewSum(size int, useSparse bool) (*Sum, error) {
	opt := Options{Size: size, Sparse: useSparse}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	return &Sum{
		size:   size,
		sparse: useSparse,
		weight: newVec(opt),
		sum:    newVec(opt),
	}, nil
}

func (p *Sum) checkUsable(bin int) error {
	if p.weight == nil {
		return ErrCollected
	}
	if bin < 0 || bin >= p.size {
		return errors.Newf("bin %d out of range [0, %d)", bin, p.size)
	}
	return nil
}

// AddDatum 加一个数据点,权重按 1 计
func (p *Sum) AddDatum(bin int, value float64) error {
	return p.AddWeightedDatum(bin, value, 1)
}

// AddWeightedDatum 加一个带权数据点
func (p *Sum) AddWeightedDatum(bin int, value, weight float64) error {
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	p.weight.Add(bin, weight)
	p.sum.Add(bin, value*weight)
	return nil
}

// AddData 同一 bin 的一批数据点,隐式全 1 权重
func (p *Sum) AddData(bin int, values []float64) error {
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	for _, v := range values {
		p.weight.Add(bin, 1)
		p.sum.Add(bin, v)
	}
	return nil
}

// AddWeightedData 同一 bin 的一批带权数据点
func (p *Sum) AddWeightedData(bin int, values, weights []float64) error {
	if len(values) != len(weights) {
		return errors.Newf("values/weights length mismatch: %d vs %d", len(values), len(weights))
	}
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	for i, v := range values {
		p.weight.Add(bin, weights[i])
		p.sum.Add(bin, v*weights[i])
	}
	return nil
}

func (p *Sum) release() {
	p.weight, p.sum = nil, nil
}

// sparseSum 稀疏 reduce 的归并算子:逐元素求和
func sparseSum(a, b any) (any, error) {
	aa, ok := a.(*sparse.Array)
	if !ok {
		return nil, errors.Newf("expected sparse array in reduce, got %T", a)
	}
	bb, ok := b.(*sparse.Array)
	if !ok {
		return nil, errors.Newf("expected sparse array in reduce, got %T", b)
	}
	aa.AddInPlace(bb)
	return aa, nil
}

// Collect 终结并合并,返回每 bin 的 (weight, sum)。
// gather 模式下非 root 返回 nil, nil。终结操作,只能调用一次。
func (p *Sum) Collect(c comm.Communicator, mode Mode) (weight, sum store.Vector, err error) {
	if mode != Gather && mode != AllGather {
		return nil, nil, errors.Wrapf(ErrBadMode, "got %q", mode)
	}
	if p.weight == nil {
		return nil, nil, ErrCollected
	}
	w, s := p.weight, p.sum
	defer p.release()

	if c == nil || c.Size() == 1 {
		return w, s, nil
	}

	if p.sparse {
		wa, _ := store.AsSparse(w)
		sa, _ := store.AsSparse(s)
		var wv, sv any
		if mode == AllGather {
			if wv, err = c.AllReduce(wa, sparseSum); err != nil {
				return nil, nil, err
			}
			if sv, err = c.AllReduce(sa, sparseSum); err != nil {
				return nil, nil, err
			}
		} else {
			if wv, err = c.Reduce(wa, sparseSum, 0); err != nil {
				return nil, nil, err
			}
			if sv, err = c.Reduce(sa, sparseSum, 0); err != nil {
				return nil, nil, err
			}
			if c.Rank() != 0 {
				return nil, nil, nil
			}
		}
		return store.FromSparse(wv.(*sparse.Array)), store.FromSparse(sv.(*sparse.Array)), nil
	}

	wbuf, _ := store.AsDense(w)
	sbuf, _ := store.AsDense(s)
	if mode == AllGather {
		if err := c.AllReduceFloat64s(wbuf); err != nil {
			return nil, nil, err
		}
		if err := c.AllReduceFloat64s(sbuf); err != nil {
			return nil, nil, err
		}
		return w, s, nil
	}
	if err := c.ReduceFloat64s(wbuf, 0); err != nil {
		return nil, nil, err
	}
	if err := c.ReduceFloat64s(sbuf, 0); err != nil {
		return nil, nil, err
	}
	if c.Rank() != 0 {
		return nil, nil, nil
	}
	return w, s, nil
}

// Run 喂完迭代器再 Collect
func (p *Sum) Run(seq iter.Seq[Chunk], c comm.Communicator, mode Mode) (weight, sum store.Vector, err error) {
	if err := feed(p, seq); err != nil {
		return nil, nil, err
	}
	return p.Collect(c, mode)
}
