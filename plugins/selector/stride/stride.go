package stride

import "formulaprep/pkg/contract"

// Options: 确定性等间隔选择参数。
type Options struct {
	contract.Quota `koanf:",squash"`
}

// Selector 等间隔选择：不依赖随机数，结果只由 (n, count) 决定。
// 默认策略：无需种子即可获得均匀覆盖。
type Selector struct {
	quota contract.Quota
}

// New 创建等间隔选择器。Count <= 0 时按 Ratio 推导数量。
func New(opts *Options) *Selector {
	var q contract.Quota
	if opts != nil {
		q = opts.Quota
	}
	return &Selector{quota: q}
}

var _ contract.Selector = (*Selector)(nil)

// Select 计算 k=min(count,n) 个等间隔下标：
// n <= k 时全选；否则 step = n/k（实数），第 i 个为 floor(i*step)，截断到 n-1。
func (s *Selector) Select(n int) (contract.IndexSet, error) {
	return Indices(n, s.quota.Resolve(n)), nil
}

// Indices 为纯函数形式，供预览与测试直接调用。
func Indices(n, k int) contract.IndexSet {
	if n <= 0 || k <= 0 {
		return contract.IndexSet{}
	}
	out := make(contract.IndexSet, min(n, k))
	if n <= k {
		for i := 0; i < n; i++ {
			out[i] = struct{}{}
		}
		return out
	}
	step := float64(n) / float64(k)
	for i := 0; i < k; i++ {
		idx := int(float64(i) * step)
		if idx > n-1 {
			idx = n - 1
		}
		out[idx] = struct{}{}
	}
	return out
}
