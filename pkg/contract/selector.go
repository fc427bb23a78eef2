package contract

import "sort"

// IndexSet: 候选列表（按文件名排序、去重）上的 0 基下标集合。
type IndexSet map[int]struct{}

// NewIndexSet 由下标列表构造集合。
func NewIndexSet(idx ...int) IndexSet {
	s := make(IndexSet, len(idx))
	for _, i := range idx {
		s[i] = struct{}{}
	}
	return s
}

// Has 报告 i 是否被选中。
func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Sorted 返回升序下标。
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Selector: 给定候选数量，计算要增强的下标集合。
// 约束：
//  1. 纯计算，无 I/O；
//  2. 对相同的 (n, 策略参数) 结果完全一致（含随机策略：种子决定一切）；
//  3. 结果大小为 min(count, n)；All 策略为全部下标。
type Selector interface {
	Select(n int) (IndexSet, error)
}

// Quota: 增强数量的来源。Count > 0 时直接使用；否则按 floor(n*Ratio) 推导。
// 两者都不为正时结果为 0（空选择，而非错误）。
type Quota struct {
	Count int     `json:"count" yaml:"count" koanf:"count"`
	Ratio float64 `json:"ratio" yaml:"ratio" koanf:"ratio"`
}

// Resolve 返回针对 n 个候选的目标数量（不超过 n）。
func (q Quota) Resolve(n int) int {
	if n <= 0 {
		return 0
	}
	k := 0
	switch {
	case q.Count > 0:
		k = q.Count
	case q.Ratio > 0:
		k = int(float64(n) * q.Ratio)
	}
	if k > n {
		k = n
	}
	return k
}
