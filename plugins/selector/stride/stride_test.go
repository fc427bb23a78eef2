package stride

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaprep/pkg/contract"
)

// TestIndicesExample 10 取 3 → {0,3,6}。
func TestIndicesExample(t *testing.T) {
	if diff := cmp.Diff([]int{0, 3, 6}, Indices(10, 3).Sorted()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

// TestIndicesDeterministic 任意 n,k 两次调用一致，大小为 min(n,k)，范围合法。
func TestIndicesDeterministic(t *testing.T) {
	for n := 1; n <= 60; n++ {
		for k := 1; k <= 70; k += 3 {
			a := Indices(n, k)
			b := Indices(n, k)
			require.Equal(t, a, b)
			require.Len(t, a, min(n, k), "n=%d k=%d", n, k)
			for i := range a {
				require.True(t, i >= 0 && i < n)
			}
		}
	}
}

// TestIndicesAllWhenSmall n <= k 全选。
func TestIndicesAllWhenSmall(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, Indices(3, 40).Sorted())
	assert.Empty(t, Indices(0, 3))
	assert.Empty(t, Indices(5, 0))
}

// TestSelectorQuota 数量优先，其次比例（向下取整）。
func TestSelectorQuota(t *testing.T) {
	s := New(&Options{Quota: contract.Quota{Count: 4}})
	got, _ := s.Select(100)
	assert.Equal(t, []int{0, 25, 50, 75}, got.Sorted())

	s = New(&Options{Quota: contract.Quota{Ratio: 0.1}})
	got, _ = s.Select(25)
	assert.Equal(t, []int{0, 12}, got.Sorted())

	got, _ = s.Select(9)
	assert.Empty(t, got)

	got, _ = New(nil).Select(10)
	assert.Empty(t, got)

	// 负数量视为未设置，回退到比例
	got, _ = New(&Options{Quota: contract.Quota{Count: -1, Ratio: 0.5}}).Select(4)
	assert.Equal(t, []int{0, 2}, got.Sorted())
}
