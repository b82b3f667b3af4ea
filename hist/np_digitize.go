package hist

import "sort"

// Digitize numpy.digitize 的左闭右开版本:返回 i 使得
// edges[i] <= x < edges[i+1]。x 小于最左边界返回 -1,
// 大于等于最右边界返回 len(edges)-1,两者都落在有效 bin 范围
// [0, len(edges)-2] 之外,由调用方丢弃。
// edges 必须升序。
func Digitize(edges []float64, x float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > x }) - 1
}
