// Package prng 提供可跨语言复现的确定性伪随机源。
//
// 算法为 SplitMix64（Steele, Lea, Flood 2014）：
//
//	state += 0x9E3779B97F4A7C15
//	z := state
//	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
//	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
//	return z ^ (z >> 31)
//
// 全部为 64 位无符号环绕运算。种子即初始 state（int64 按补码转为 uint64）。
// 有界抽样 Intn(m) 使用“取模 + 拒绝偏置尾部”：令 t = (2^64 - m) mod m，
// 反复抽取 x 直到 x >= t，返回 x mod m。Float64 取高 53 位除以 2^53。
//
// 这些规则即复现契约：任何语言按上式实现，对同一种子得到同一序列。
package prng

// SplitMix64 为非并发安全的确定性生成器。
type SplitMix64 struct {
	state uint64
}

// New 以 seed 初始化生成器。
func New(seed int64) *SplitMix64 { return &SplitMix64{state: uint64(seed)} }

// Uint64 返回下一个 64 位值。
func (s *SplitMix64) Uint64() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Intn 返回 [0,m) 内的均匀整数；m <= 0 时 panic。
func (s *SplitMix64) Intn(m int) int {
	if m <= 0 {
		panic("prng: Intn with non-positive bound")
	}
	um := uint64(m)
	t := -um % um
	for {
		x := s.Uint64()
		if x >= t {
			return int(x % um)
		}
	}
}

// Float64 返回 [0,1) 内的均匀浮点数。
func (s *SplitMix64) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Sample 从 [0,n) 中无放回抽取 k 个下标（部分 Fisher–Yates），按抽取顺序返回。
// k 超出 [0,n] 时截断。
func (s *SplitMix64) Sample(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.Intn(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}
