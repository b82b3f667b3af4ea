// Package store 提供 accumulator 的按 bin 存储后端:
// 稠密数组和稀疏映射两种实现共用同一能力接口,构造之后算术语义一致。
package store

import (
	"gonum.org/v1/gonum/floats"

	"parstats/sparse"
)

// Vector 按 bin 存储能力接口。
// 两种实现的差别只在"哪些下标被遍历/占用存储",单点算术完全一致。
type Vector interface {
	Get(i int) float64
	Set(i int, v float64)
	// Add 把 dv 累加到第 i 个元素上
	Add(i int, dv float64)
	// Div 逐元素相除:dense 在全长上,sparse 在自身下标集合上
	Div(o Vector) Vector
	// ForEach 遍历元素:dense 按下标升序走全长,sparse 只走已赋值下标(顺序不定)
	ForEach(fn func(i int, v float64) bool)
	ToDense() []float64
	// Size 声明的 bin 数,sparse 未声明时 <=0
	Size() int
}

type denseVec struct {
	data []float64
}

// NewDense 全零稠密向量
func NewDense(size int) Vector {
	return &denseVec{data: make([]float64, size)}
}

// FromSlice 直接包一个既有缓冲区(接收端预分配的 recv buffer)
func FromSlice(data []float64) Vector {
	return &denseVec{data: data}
}

func (d *denseVec) Get(i int) float64     { return d.data[i] }
func (d *denseVec) Set(i int, v float64)  { d.data[i] = v }
func (d *denseVec) Add(i int, dv float64) { d.data[i] += dv }

func (d *denseVec) Div(o Vector) Vector {
	od, ok := o.(*denseVec)
	if !ok {
		panic("store: mixed vector backends")
	}
	out := make([]float64, len(d.data))
	floats.DivTo(out, d.data, od.data)
	return &denseVec{data: out}
}

func (d *denseVec) ForEach(fn func(i int, v float64) bool) {
	for i, v := range d.data {
		if !fn(i, v) {
			return
		}
	}
}

func (d *denseVec) ToDense() []float64 {
	out := make([]float64, len(d.data))
	copy(out, d.data)
	return out
}

func (d *denseVec) Size() int { return len(d.data) }

type sparseVec struct {
	a *sparse.Array
}

// NewSparse 空稀疏向量,size 只作边界检查与 to-dense 的建议上限
func NewSparse(size int) Vector {
	return &sparseVec{a: sparse.New(size)}
}

// FromSparse 包一个既有稀疏数组(反序列化得到的对象)
func FromSparse(a *sparse.Array) Vector {
	return &sparseVec{a: a}
}

func (s *sparseVec) Get(i int) float64 { return s.a.Get(i) }

// Set 走 SetDirect:下标合法性由 accumulator 在入口处统一校验
func (s *sparseVec) Set(i int, v float64)  { s.a.SetDirect(i, v) }
func (s *sparseVec) Add(i int, dv float64) { s.a.SetDirect(i, s.a.Get(i)+dv) }

func (s *sparseVec) Div(o Vector) Vector {
	os, ok := o.(*sparseVec)
	if !ok {
		panic("store: mixed vector backends")
	}
	return &sparseVec{a: s.a.Div(os.a)}
}

func (s *sparseVec) ForEach(fn func(i int, v float64) bool) {
	s.a.ForEach(fn)
}

func (s *sparseVec) ToDense() []float64 { return s.a.ToDense() }

func (s *sparseVec) Size() int { return s.a.Size() }

// AsDense 取稠密向量的底层切片,发送端零拷贝用
func AsDense(v Vector) ([]float64, bool) {
	d, ok := v.(*denseVec)
	if !ok {
		return nil, false
	}
	return d.data, true
}

// AsSparse 取稀疏向量的底层数组
func AsSparse(v Vector) (*sparse.Array, bool) {
	s, ok := v.(*sparseVec)
	if !ok {
		return nil, false
	}
	return s.a, true
}
