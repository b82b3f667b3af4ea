package stats

import (
	"github.com/cockroachdb/errors"

	"parstats/comm"
	"parstats/sparse"
	"parstats/store"
)

// 合并协议的传输层。稀疏状态按不定长对象(序列化后)收发,
// 稠密状态按定长数值缓冲区收发,接收端先预分配。

func (p *MeanVariance) sendVec(c comm.Communicator, v store.Vector) error {
	if p.opt.Sparse {
		a, ok := store.AsSparse(v)
		if !ok {
			return errors.New("sparse accumulator holds non-sparse vector")
		}
		return c.Send(a, 0)
	}
	buf, ok := store.AsDense(v)
	if !ok {
		return errors.New("dense accumulator holds non-dense vector")
	}
	return c.SendFloat64s(buf, 0)
}

func (p *MeanVariance) recvVec(c comm.Communicator, src int) (store.Vector, error) {
	if p.opt.Sparse {
		v, err := c.Recv(src)
		if err != nil {
			return nil, err
		}
		a, ok := v.(*sparse.Array)
		if !ok {
			return nil, errors.Newf("expected sparse array from rank %d, got %T", src, v)
		}
		return store.FromSparse(a), nil
	}
	buf := make([]float64, p.opt.Size)
	if err := c.RecvFloat64s(buf, src); err != nil {
		return nil, err
	}
	return store.FromSlice(buf), nil
}

// collectParallel 分布式合并:非 root 把本地状态逐条发给 rank 0
// 并随手释放(压住单节点峰值内存),root 以本地状态为种子,
// 按 rank 升序两两合并,最后推导方差并套退化规则。
// gather 模式只有 root 拿到结果;allgather 模式 root 再广播一轮。
func (p *MeanVariance) collectParallel(c comm.Communicator, mode Mode) (store.Vector, store.Vector, store.Vector, error) {
	if c.Rank() != 0 {
		if err := p.sendState(c); err != nil {
			return nil, nil, nil, err
		}
		if mode == Gather {
			return nil, nil, nil, nil
		}
		return p.recvResult(c)
	}

	weight, mean, m2, w2 := p.weight, p.mean, p.m2, p.w2
	for src := 1; src < c.Size(); src++ {
		w, err := p.recvVec(c, src)
		if err != nil {
			return nil, nil, nil, err
		}
		m, err := p.recvVec(c, src)
		if err != nil {
			return nil, nil, nil, err
		}
		s, err := p.recvVec(c, src)
		if err != nil {
			return nil, nil, nil, err
		}
		combine(weight, mean, m2, w, m, s)
		if p.opt.Weighted {
			s2, err := p.recvVec(c, src)
			if err != nil {
				return nil, nil, nil, err
			}
			addInto(w2, s2)
		}
	}

	variance := m2.Div(weight)
	applyGates(p.opt.Weighted, weight, w2, mean, variance)

	if mode == AllGather {
		if err := p.bcastResult(c, weight, mean, variance); err != nil {
			return nil, nil, nil, err
		}
	}
	return weight, mean, variance, nil
}

// sendState 逐条发出并置 nil,发完一条就可以被回收一条
func (p *MeanVariance) sendState(c comm.Communicator) error {
	if err := p.sendVec(c, p.weight); err != nil {
		return err
	}
	p.weight = nil
	if err := p.sendVec(c, p.mean); err != nil {
		return err
	}
	p.mean = nil
	if err := p.sendVec(c, p.m2); err != nil {
		return err
	}
	p.m2 = nil
	if p.opt.Weighted {
		if err := p.sendVec(c, p.w2); err != nil {
			return err
		}
		p.w2 = nil
	}
	return nil
}

// bcastResult root 在 allgather 模式下把合并结果广播出去
func (p *MeanVariance) bcastResult(c comm.Communicator, weight, mean, variance store.Vector) error {
	for _, v := range []store.Vector{weight, mean, variance} {
		if p.opt.Sparse {
			a, _ := store.AsSparse(v)
			if _, err := c.Bcast(a, 0); err != nil {
				return err
			}
		} else {
			buf, _ := store.AsDense(v)
			if err := c.BcastFloat64s(buf, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// recvResult 非 root 在 allgather 模式下接收广播结果;
// 稠密路径在接收前按声明的 bin 数预分配缓冲区
func (p *MeanVariance) recvResult(c comm.Communicator) (store.Vector, store.Vector, store.Vector, error) {
	out := make([]store.Vector, 3)
	for i := range out {
		if p.opt.Sparse {
			v, err := c.Bcast(nil, 0)
			if err != nil {
				return nil, nil, nil, err
			}
			a, ok := v.(*sparse.Array)
			if !ok {
				return nil, nil, nil, errors.Newf("expected sparse array from broadcast, got %T", v)
			}
			out[i] = store.FromSparse(a)
		} else {
			buf := make([]float64, p.opt.Size)
			if err := c.BcastFloat64s(buf, 0); err != nil {
				return nil, nil, nil, err
			}
			out[i] = store.FromSlice(buf)
		}
	}
	return out[0], out[1], out[2], nil
}
