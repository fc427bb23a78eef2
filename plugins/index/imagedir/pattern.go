package imagedir

import (
	"fmt"
	"regexp"
	"strings"

	"formulaprep/pkg/contract"
)

// 文件名编号格式：<prefix>_<digits>.png，digits 为定宽。
// v1（旧）为 3 位，v2（当前）为 6 位。一次运行只用一种宽度，不做兼容匹配，
// 否则 "x_001234.png" 之类的名字在两种宽度下会被歧义归类。
const (
	LegacyDigits  = 3
	DefaultDigits = 6
)

// Pattern 为定宽编号提取器。
type Pattern struct {
	digits int
	re     *regexp.Regexp
}

// NewPattern 仅接受 3 或 6。
func NewPattern(digits int) (*Pattern, error) {
	if digits != LegacyDigits && digits != DefaultDigits {
		return nil, fmt.Errorf("%w: id digits must be %d or %d, got %d", contract.ErrInvalidInput, LegacyDigits, DefaultDigits, digits)
	}
	// 下划线锚定，避免更长的数字串被截取匹配
	re := regexp.MustCompile(fmt.Sprintf(`_(\d{%d})\.[pP][nN][gG]$`, digits))
	return &Pattern{digits: digits, re: re}, nil
}

// Digits 返回编号宽度。
func (p *Pattern) Digits() int { return p.digits }

// Extract 从文件名（可带目录，分隔符不限）提取编号；不匹配返回空。
func (p *Pattern) Extract(name string) contract.ItemID {
	base := contract.RefBase(name)
	m := p.re.FindStringSubmatch(base)
	if m == nil {
		return ""
	}
	return contract.ItemID(m[1])
}

// ParseID 将 bad-ID 列表中的一行解析为编号：
// 可以是文件名/路径（按模式提取），也可以是恰好 digits 位的纯数字。
func (p *Pattern) ParseID(s string) contract.ItemID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if id := p.Extract(s); id != "" {
		return id
	}
	if len(s) != p.digits {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return contract.ItemID(s)
}
