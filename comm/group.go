package comm

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// p2p 是两种组实现的最小内核:定界字节帧的点对点收发。
// 集合操作统一在 group 上由 rank 升序的点对点组合出来。
type p2p interface {
	Rank() int
	Size() int
	sendBytes(b []byte, dest int) error
	recvBytes(source int) ([]byte, error)
}

type group struct {
	p2p
}

func (g *group) checkPeer(r int) error {
	if r < 0 || r >= g.Size() {
		return errors.Newf("rank %d out of range [0, %d)", r, g.Size())
	}
	if r == g.Rank() {
		return errors.Newf("rank %d cannot address itself", r)
	}
	return nil
}

func (g *group) Send(v any, dest int) error {
	if err := g.checkPeer(dest); err != nil {
		return err
	}
	b, err := marshal(v)
	if err != nil {
		return err
	}
	return g.sendBytes(b, dest)
}

func (g *group) Recv(source int) (any, error) {
	if err := g.checkPeer(source); err != nil {
		return nil, err
	}
	b, err := g.recvBytes(source)
	if err != nil {
		return nil, err
	}
	return unmarshal(b)
}

func (g *group) SendFloat64s(buf []float64, dest int) error {
	return g.Send(buf, dest)
}

func (g *group) RecvFloat64s(buf []float64, source int) error {
	v, err := g.Recv(source)
	if err != nil {
		return err
	}
	in, ok := v.([]float64)
	if !ok {
		return errors.Newf("expected float64 buffer from rank %d, got %T", source, v)
	}
	if len(in) != len(buf) {
		return errors.Newf("buffer length mismatch: recv %d into %d", len(in), len(buf))
	}
	copy(buf, in)
	return nil
}

func (g *group) Bcast(v any, root int) (any, error) {
	if root < 0 || root >= g.Size() {
		return nil, errors.Newf("root %d out of range [0, %d)", root, g.Size())
	}
	if g.Rank() == root {
		b, err := marshal(v)
		if err != nil {
			return nil, err
		}
		for r := 0; r < g.Size(); r++ {
			if r == root {
				continue
			}
			if err := g.sendBytes(b, r); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
	return g.Recv(root)
}

func (g *group) BcastFloat64s(buf []float64, root int) error {
	if g.Rank() == root {
		_, err := g.Bcast(buf, root)
		return err
	}
	v, err := g.Bcast(nil, root)
	if err != nil {
		return err
	}
	in, ok := v.([]float64)
	if !ok {
		return errors.Newf("expected float64 buffer from root %d, got %T", root, v)
	}
	if len(in) != len(buf) {
		return errors.Newf("buffer length mismatch: bcast %d into %d", len(in), len(buf))
	}
	copy(buf, in)
	return nil
}

// ReduceFloat64s 按元素求和;root 以自身 buf 为种子,按 rank 升序累加各端
func (g *group) ReduceFloat64s(buf []float64, root int) error {
	if g.Rank() != root {
		return g.SendFloat64s(buf, root)
	}
	tmp := make([]float64, len(buf))
	for src := 0; src < g.Size(); src++ {
		if src == root {
			continue
		}
		if err := g.RecvFloat64s(tmp, src); err != nil {
			return err
		}
		floats.Add(buf, tmp)
	}
	return nil
}

func (g *group) AllReduceFloat64s(buf []float64) error {
	if err := g.ReduceFloat64s(buf, 0); err != nil {
		return err
	}
	return g.BcastFloat64s(buf, 0)
}

// Reduce 不定长对象归并;root 以自身 v 为种子,按 rank 升序 op(acc, incoming)
func (g *group) Reduce(v any, op ReduceOp, root int) (any, error) {
	if g.Rank() != root {
		if err := g.Send(v, root); err != nil {
			return nil, err
		}
		return nil, nil
	}
	acc := v
	for src := 0; src < g.Size(); src++ {
		if src == root {
			continue
		}
		in, err := g.Recv(src)
		if err != nil {
			return nil, err
		}
		acc, err = op(acc, in)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (g *group) AllReduce(v any, op ReduceOp) (any, error) {
	acc, err := g.Reduce(v, op, 0)
	if err != nil {
		return nil, err
	}
	return g.Bcast(acc, 0)
}
