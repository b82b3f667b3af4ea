package stats

import (
	"math"

	"parstats/store"
)

// effSampleGate 加权方差的有效样本数门限。
// 有效样本数 weight²/W2 必须超过 1 才谈得上方差,
// 多出的 1e-6 挡住恰好一个有效样本时的浮点毛刺。
const effSampleGate = 1.000001

// combine Chan/Schubert-Gertz 两两合并:把对端的 (weight, mean, M2)
// 三元组并进本地三元组。与把对端原始数据逐点重放在无限精度下等价,
// 浮点舍入随合并顺序不同而不同,这是算法的已知性质。
// 对端 weight 为 0 的 bin 不会产生任何写入。
func combine(weight, mean, m2 store.Vector, w, m, s store.Vector) {
	w.ForEach(func(i int, wi float64) bool {
		if wi == 0 {
			return true
		}
		total := weight.Get(i) + wi
		delta := m.Get(i) - mean.Get(i)
		mu := mean.Get(i) + (wi/total)*delta
		delta2 := m.Get(i) - mu
		m2.Set(i, m2.Get(i)+s.Get(i)+wi*delta*delta2)
		mean.Set(i, mu)
		weight.Set(i, total)
		return true
	})
}

// addInto dst += src,W2 这类纯求和量用
func addInto(dst, src store.Vector) {
	src.ForEach(func(i int, v float64) bool {
		if v != 0 {
			dst.Add(i, v)
		}
		return true
	})
}

// applyGates 终结时的两条退化规则,串行与合并后的分布式路径用同一套:
//  1. weight==0 的 bin 均值无定义,置 NaN;
//  2. 有效样本数不超过 1 的 bin 方差无定义,置 NaN
//     (无权: weight < 2;加权: weight²/W2 < effSampleGate)。
//
// 先收集再改写,避免在遍历存储的同时改它。
func applyGates(weighted bool, weight, w2, mean, variance store.Vector) {
	var badVar []int
	variance.ForEach(func(i int, _ float64) bool {
		w := weight.Get(i)
		if weighted {
			if !(w*w/w2.Get(i) >= effSampleGate) {
				badVar = append(badVar, i)
			}
		} else if w < 2 {
			badVar = append(badVar, i)
		}
		return true
	})
	for _, i := range badVar {
		variance.Set(i, math.NaN())
	}

	var badMean []int
	mean.ForEach(func(i int, _ float64) bool {
		if weight.Get(i) == 0 {
			badMean = append(badMean, i)
		}
		return true
	})
	for _, i := range badMean {
		mean.Set(i, math.NaN())
	}
}
