package sparse

import (
	"math"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
)

// ErrKeyMismatch 两个稀疏数组的已赋值下标集合不一致时无法比较
var ErrKeyMismatch = errors.New("cannot compare two sparse arrays with different set indices")

// Array 稀疏一维 float64 数组:只有显式赋值过的下标占用存储,
// 读取未赋值下标恒为 0 且不产生写入。
// size<=0 表示不声明长度上限,ToDense 时按最大下标 +1 推断。
type Array struct {
	m    swiss.Map[int, float64]
	size int
}

// New 建一个稀疏数组,size<=0 为不限长
func New(size int) *Array {
	a := &Array{size: size}
	a.m.Init(16)
	return a
}

// FromArrays 由 (indices, values) 平行序列重建稀疏数组,反序列化入口
func FromArrays(indices []int, values []float64, size int) (*Array, error) {
	if len(indices) != len(values) {
		return nil, errors.Newf("indices/values length mismatch: %d vs %d", len(indices), len(values))
	}
	a := New(size)
	for i, k := range indices {
		if err := a.Set(k, values[i]); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Size 声明的长度上限,<=0 表示未声明
func (a *Array) Size() int { return a.size }

// CountNonzero 已赋值的元素个数
func (a *Array) CountNonzero() int { return a.m.Len() }

func (a *Array) checkIndex(i int) error {
	if i < 0 {
		return errors.Newf("negative index %d in sparse array", i)
	}
	if a.size > 0 && i >= a.size {
		return errors.Newf("index %d too large in sparse array of size %d", i, a.size)
	}
	return nil
}

// Set 单点赋值,越界返回 bounds 错误
func (a *Array) Set(i int, v float64) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	a.m.Put(i, v)
	return nil
}

// SetDirect 跳过越界检查的直接赋值,内部热路径用
// (调用方必须已自行校验过下标)
func (a *Array) SetDirect(i int, v float64) {
	a.m.Put(i, v)
}

// SetMany 向量化赋值:先整体校验再写入,不产生部分写
func (a *Array) SetMany(indices []int, values []float64) error {
	if len(indices) != len(values) {
		return errors.Newf("indices/values length mismatch: %d vs %d", len(indices), len(values))
	}
	for _, k := range indices {
		if err := a.checkIndex(k); err != nil {
			return err
		}
	}
	for i, k := range indices {
		a.m.Put(k, values[i])
	}
	return nil
}

// Fill 把同一个标量写到一批下标上
func (a *Array) Fill(indices []int, v float64) error {
	for _, k := range indices {
		if err := a.checkIndex(k); err != nil {
			return err
		}
	}
	for _, k := range indices {
		a.m.Put(k, v)
	}
	return nil
}

// Get 读取,未赋值下标返回 0,不会写入存储
func (a *Array) Get(i int) float64 {
	v, _ := a.m.Get(i)
	return v
}

// Has 下标是否被显式赋值过
func (a *Array) Has(i int) bool {
	_, ok := a.m.Get(i)
	return ok
}

// ForEach 遍历已赋值元素,fn 返回 false 提前终止;顺序不保证
func (a *Array) ForEach(fn func(i int, v float64) bool) {
	a.m.All(fn)
}

// Clone 深拷贝
func (a *Array) Clone() *Array {
	x := New(a.size)
	a.m.All(func(k int, v float64) bool {
		x.m.Put(k, v)
		return true
	})
	return x
}

// Add 逐元素相加,下标集合取并集,缺失一侧按 0 读
func (a *Array) Add(b *Array) *Array {
	x := New(a.size)
	a.m.All(func(k int, v float64) bool {
		x.m.Put(k, v+b.Get(k))
		return true
	})
	b.m.All(func(k int, v float64) bool {
		if !a.Has(k) {
			x.m.Put(k, v)
		}
		return true
	})
	return x
}

// AddInPlace 原地累加 b,reduce 求和用
func (a *Array) AddInPlace(b *Array) {
	b.m.All(func(k int, v float64) bool {
		a.m.Put(k, a.Get(k)+v)
		return true
	})
}

// Sub 逐元素相减,下标集合取并集
func (a *Array) Sub(b *Array) *Array {
	x := New(a.size)
	a.m.All(func(k int, v float64) bool {
		x.m.Put(k, v-b.Get(k))
		return true
	})
	b.m.All(func(k int, v float64) bool {
		if !a.Has(k) {
			x.m.Put(k, -v)
		}
		return true
	})
	return x
}

// Mul 逐元素相乘,只在自身下标集合上定义,对方缺失下标按 0 读
func (a *Array) Mul(b *Array) *Array {
	x := New(a.size)
	a.m.All(func(k int, v float64) bool {
		x.m.Put(k, v*b.Get(k))
		return true
	})
	return x
}

// Div 逐元素相除,只在自身下标集合上定义
// 除数未赋值即除 0,结果按 IEEE 语义给 ±Inf/NaN
func (a *Array) Div(b *Array) *Array {
	x := New(a.size)
	a.m.All(func(k int, v float64) bool {
		x.m.Put(k, v/b.Get(k))
		return true
	})
	return x
}

// Pow 逐元素标量幂,只在自身下标集合上定义
func (a *Array) Pow(p float64) *Array {
	x := New(a.size)
	a.m.All(func(k int, v float64) bool {
		x.m.Put(k, math.Pow(v, p))
		return true
	})
	return x
}

// EqualScalar 返回取值等于 v 的下标,升序
func (a *Array) EqualScalar(v float64) []int {
	var inds []int
	a.m.All(func(k int, kv float64) bool {
		if kv == v {
			inds = append(inds, k)
		}
		return true
	})
	sort.Ints(inds)
	return inds
}

// EqualArray 返回两数组取值相等的下标,升序。
// 两边已赋值下标集合必须一致,否则未赋值位置的相等性没有一致定义。
func (a *Array) EqualArray(b *Array) ([]int, error) {
	if a.m.Len() != b.m.Len() {
		return nil, ErrKeyMismatch
	}
	var ka, kb bitset.BitSet
	a.m.All(func(k int, _ float64) bool {
		ka.Set(uint(k))
		return true
	})
	b.m.All(func(k int, _ float64) bool {
		kb.Set(uint(k))
		return true
	})
	if !ka.Equal(&kb) {
		return nil, ErrKeyMismatch
	}
	var inds []int
	a.m.All(func(k int, v float64) bool {
		if v == b.Get(k) {
			inds = append(inds, k)
		}
		return true
	})
	sort.Ints(inds)
	return inds, nil
}

// ToDense 物化成稠密数组,未赋值位置填 0。
// 未声明 size 时长度取最大下标 +1。
func (a *Array) ToDense() []float64 {
	n := a.size
	if n <= 0 {
		a.m.All(func(k int, _ float64) bool {
			if k+1 > n {
				n = k + 1
			}
			return true
		})
	}
	dense := make([]float64, n)
	a.m.All(func(k int, v float64) bool {
		dense[k] = v
		return true
	})
	return dense
}

// FromDense 稠密转稀疏,零值元素不落存储以保持稀疏性
func FromDense(dense []float64) *Array {
	a := New(len(dense))
	for k, v := range dense {
		if v != 0 {
			a.SetDirect(k, v)
		}
	}
	return a
}

// ToArrays 导出 (indices, values) 平行序列,按下标升序,序列化/遍历用
func (a *Array) ToArrays() ([]int, []float64) {
	inds := make([]int, 0, a.m.Len())
	a.m.All(func(k int, _ float64) bool {
		inds = append(inds, k)
		return true
	})
	sort.Ints(inds)
	vals := make([]float64, len(inds))
	for i, k := range inds {
		vals[i] = a.Get(k)
	}
	return inds, vals
}
