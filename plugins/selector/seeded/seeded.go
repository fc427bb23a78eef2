package seeded

import (
	"formulaprep/pkg/contract"
	"formulaprep/pkg/prng"
)

// Options: 随机（带种子）选择参数。
type Options struct {
	contract.Quota `koanf:",squash"`
	Seed int64 `json:"seed" yaml:"seed" koanf:"seed"`
}

// Selector 以种子做无放回随机抽样。
// 复现契约：相同 (n, count, seed) 得到相同集合；算法见 pkg/prng（SplitMix64 + 部分 Fisher–Yates）。
type Selector struct {
	quota contract.Quota
	seed  int64
}

// New 创建随机选择器。
func New(opts *Options) *Selector {
	if opts == nil {
		return &Selector{}
	}
	return &Selector{quota: opts.Quota, seed: opts.Seed}
}

var _ contract.Selector = (*Selector)(nil)

// Select 抽取 min(count, n) 个互不相同的下标。
func (s *Selector) Select(n int) (contract.IndexSet, error) {
	k := s.quota.Resolve(n)
	return contract.NewIndexSet(prng.New(s.seed).Sample(n, k)...), nil
}
