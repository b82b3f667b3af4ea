package stats

import (
	"math/rand"
	"testing"
)

var benchData = func() []float64 {
	rng := rand.New(rand.NewSource(1))
	out := make([]float64, 4096)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}()

// ------------------- 两遍批式公式(需要保留原始数据) -------------------
func twoPassVariance(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mu := sum / float64(len(xs))
	var m2 float64
	for _, x := range xs {
		m2 += (x - mu) * (x - mu)
	}
	return m2 / float64(len(xs))
}

func BenchmarkTwoPassVariance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = twoPassVariance(benchData)
	}
}

// ------------------- 单遍在线更新(每 bin 只留三个标量) -------------------
func BenchmarkAddDatumDense(b *testing.B) {
	p, _ := NewMeanVariance(Options{Size: 1})
	for i := 0; i < b.N; i++ {
		_ = p.AddDatum(0, benchData[i%len(benchData)])
	}
}

func BenchmarkAddDatumSparse(b *testing.B) {
	p, _ := NewMeanVariance(Options{Size: 1, Sparse: true})
	for i := 0; i < b.N; i++ {
		_ = p.AddDatum(0, benchData[i%len(benchData)])
	}
}

func BenchmarkAddWeightedDatum(b *testing.B) {
	p, _ := NewMeanVariance(Options{Size: 1, Weighted: true})
	for i := 0; i < b.N; i++ {
		_ = p.AddWeightedDatum(0, benchData[i%len(benchData)], 0.5)
	}
}
