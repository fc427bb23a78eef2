package all

import "formulaprep/pkg/contract"

// Selector 选中全部候选。
type Selector struct{}

// New 创建 all 选择器。
func New() *Selector { return &Selector{} }

var _ contract.Selector = (*Selector)(nil)

// Select 返回 0..n-1。
func (Selector) Select(n int) (contract.IndexSet, error) {
	s := make(contract.IndexSet, max(n, 0))
	for i := 0; i < n; i++ {
		s[i] = struct{}{}
	}
	return s, nil
}
