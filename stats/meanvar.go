package stats

import (
	"iter"

	"github.com/cockroachdb/errors"

	"parstats/comm"
	"parstats/store"
)

// MeanVariance 按 bin 的单遍均值/方差计算器。
// 数据逐点(或逐块)喂入,每个 bin 只维护充分统计量
// (weight, mean, M2,加权时另有 W2),不保留原始数据。
// 生命周期:构造 → 反复 Add* → 一次 Collect(终结操作,内部存储随即释放)。
//
// 更新规则是加权 Welford(West 算法),跨 worker 合并见 combine.go。
type MeanVariance struct {
	opt Options

	weight store.Vector
	mean   store.Vector
	m2     store.Vector
	w2     store.Vector // 仅加权模式:Σw²,用来算有效样本数
}

// NewMeanVariance 建一个计算器。加权与否必须在这里定死,
// 因为加权模式要预分配一条额外的 W2 数组。
func NewMeanVariance(opt Options) (*MeanVariance, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	p := &MeanVariance{
		opt:    opt,
		weight: newVec(opt),
		mean:   newVec(opt),
		m2:     newVec(opt),
	}
	if opt.Weighted {
		p.w2 = newVec(opt)
	}
	return p, nil
}

func (p *MeanVariance) checkUsable(bin int) error {
	if p.weight == nil {
		return ErrCollected
	}
	if bin < 0 || bin >= p.opt.Size {
		return errors.Newf("bin %d out of range [0, %d)", bin, p.opt.Size)
	}
	return nil
}

// update 单点 Welford 更新。delta 在均值更新前取、delta2 在更新后取,
// 这个顺序不能换,换了方差就有偏。
func (p *MeanVariance) update(bin int, value, w float64) {
	total := p.weight.Get(bin) + w
	p.weight.Set(bin, total)
	delta := value - p.mean.Get(bin)
	var mu float64
	if p.opt.Weighted {
		mu = p.mean.Get(bin) + (w/total)*delta
	} else {
		mu = p.mean.Get(bin) + delta/total
	}
	p.mean.Set(bin, mu)
	delta2 := value - mu
	p.m2.Add(bin, w*delta*delta2)
	if p.opt.Weighted {
		p.w2.Add(bin, w*w)
	}
}

// AddDatum 无权模式下往一个 bin 里加一个数据点
func (p *MeanVariance) AddDatum(bin int, value float64) error {
	if p.opt.Weighted {
		return ErrWeightsExpected
	}
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	p.update(bin, value, 1)
	return nil
}

// AddWeightedDatum 加权模式下往一个 bin 里加一个数据点。
// weight 恰为 0 时不动任何状态,避免除零痕迹。
func (p *MeanVariance) AddWeightedDatum(bin int, value, weight float64) error {
	if !p.opt.Weighted {
		return ErrWeightsUnexpected
	}
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	if weight == 0 {
		return nil
	}
	p.update(bin, value, weight)
	return nil
}

// AddData 同一 bin 的一批数据点,等价于按序逐点 AddDatum
func (p *MeanVariance) AddData(bin int, values []float64) error {
	if p.opt.Weighted {
		return ErrWeightsExpected
	}
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	for _, v := range values {
		p.update(bin, v, 1)
	}
	return nil
}

// AddWeightedData 同一 bin 的一批带权数据点
func (p *MeanVariance) AddWeightedData(bin int, values, weights []float64) error {
	if !p.opt.Weighted {
		return ErrWeightsUnexpected
	}
	if len(values) != len(weights) {
		return errors.Newf("values/weights length mismatch: %d vs %d", len(values), len(weights))
	}
	if err := p.checkUsable(bin); err != nil {
		return err
	}
	for i, v := range values {
		if weights[i] == 0 {
			continue
		}
		p.update(bin, v, weights[i])
	}
	return nil
}

// Collect 终结统计并(给了通信器时)跨 worker 合并。
// 只能调用一次,之后内部按 bin 数组被释放。
// 串行路径(c 为 nil 或组里只有一个 worker)直接在本地推导:
// variance = M2/weight,weight==0 的 bin 均值置 NaN,
// 有效样本数不过门限的 bin 方差置 NaN。
// 并行路径见 collectParallel。
func (p *MeanVariance) Collect(c comm.Communicator, mode Mode) (weight, mean, variance store.Vector, err error) {
	if mode != Gather && mode != AllGather {
		return nil, nil, nil, errors.Wrapf(ErrBadMode, "got %q", mode)
	}
	if p.weight == nil {
		return nil, nil, nil, ErrCollected
	}
	defer p.release()

	if c == nil || c.Size() == 1 {
		weight, mean, variance = p.finalizeLocal()
		return weight, mean, variance, nil
	}
	return p.collectParallel(c, mode)
}

func (p *MeanVariance) release() {
	p.weight, p.mean, p.m2, p.w2 = nil, nil, nil, nil
}

func (p *MeanVariance) finalizeLocal() (store.Vector, store.Vector, store.Vector) {
	variance := p.m2.Div(p.weight)
	applyGates(p.opt.Weighted, p.weight, p.w2, p.mean, variance)
	return p.weight, p.mean, variance
}

// Run 完整生命周期:把迭代器喂完再 Collect,定义上等价,不是独立算法
func (p *MeanVariance) Run(seq iter.Seq[Chunk], c comm.Communicator, mode Mode) (weight, mean, variance store.Vector, err error) {
	if err := feed(p, seq); err != nil {
		return nil, nil, nil, err
	}
	return p.Collect(c, mode)
}
