package prng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 参考向量：seed=0 的前三个输出（与 SplitMix64 参考实现一致）。
func TestSplitMixReferenceVector(t *testing.T) {
	g := New(0)
	assert.Equal(t, uint64(0xE220A8397B1DCDAF), g.Uint64())
	assert.Equal(t, uint64(0x6E789E6AA1B965F4), g.Uint64())
	assert.Equal(t, uint64(0x06C45D188009454F), g.Uint64())
}

// TestGoldenSequences 固定 Intn/Float64/Sample 的输出。
func TestGoldenSequences(t *testing.T) {
	g := New(42)
	got := make([]int, 8)
	for i := range got {
		got[i] = g.Intn(6)
	}
	assert.Equal(t, []int{1, 1, 0, 0, 4, 0, 1, 2}, got)

	g = New(7)
	for _, want := range []int{487, 804, 346, 203, 674} {
		assert.Equal(t, want, g.Intn(1000))
	}

	g = New(42)
	assert.Equal(t, 0.7415648787718233, g.Float64())
	assert.Equal(t, 0.1599103928769201, g.Float64())
	assert.Equal(t, 0.27860113025513866, g.Float64())

	assert.Equal(t, []int{13, 83, 86, 9, 2, 27, 87, 45, 65, 28}, New(42).Sample(100, 10))

	// 负种子按补码转为 state
	assert.Equal(t, uint64(0xE4D971771B652C20), New(-1).Uint64())
}

// TestSampleDistinct 无放回、范围内、可复现。
func TestSampleDistinct(t *testing.T) {
	a := New(42).Sample(100, 10)
	b := New(42).Sample(100, 10)
	require.Len(t, a, 10)
	assert.Equal(t, a, b)
	seen := map[int]bool{}
	for _, v := range a {
		assert.True(t, v >= 0 && v < 100)
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	assert.NotEqual(t, a, New(43).Sample(100, 10))
}

// TestSampleBounds 截断与空输入。
func TestSampleBounds(t *testing.T) {
	assert.Nil(t, New(1).Sample(0, 3))
	assert.Nil(t, New(1).Sample(5, 0))
	assert.Len(t, New(1).Sample(3, 10), 3)
}

// TestFloat64Range [0,1)。
func TestFloat64Range(t *testing.T) {
	g := New(7)
	for i := 0; i < 1000; i++ {
		f := g.Float64()
		assert.True(t, f >= 0 && f < 1)
	}
}

// TestIntnPanics 非正上界。
func TestIntnPanics(t *testing.T) {
	assert.Panics(t, func() { New(1).Intn(0) })
}
