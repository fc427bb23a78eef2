package reconcile

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"formulaprep/pkg/contract"
	"formulaprep/plugins/index/imagedir"
)

// BadIDs 是人工标记的问题编号集合（每行一个编号或文件名，# 开头为注释）。
type BadIDs struct {
	ids map[contract.ItemID]struct{}
	// Invalid: 无法解析为编号的非空行数。
	Invalid int
}

// LoadBadIDs 读取 bad-ID 列表；文件不存在为配置错误。
func LoadBadIDs(path string, p *imagedir.Pattern) (*BadIDs, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: bad-id list not found: %s", contract.ErrConfig, path)
		}
		return nil, err
	}
	defer f.Close()
	b := &BadIDs{ids: map[contract.ItemID]struct{}{}}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// 允许逗号分隔的多项
		for _, part := range strings.Split(line, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if id := p.ParseID(part); id != "" {
				b.ids[id] = struct{}{}
			} else {
				b.Invalid++
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// NewBadIDs 由编号直接构造。
func NewBadIDs(ids ...contract.ItemID) *BadIDs {
	b := &BadIDs{ids: make(map[contract.ItemID]struct{}, len(ids))}
	for _, id := range ids {
		b.ids[id] = struct{}{}
	}
	return b
}

// Has 对 nil 安全。
func (b *BadIDs) Has(id contract.ItemID) bool {
	if b == nil {
		return false
	}
	_, ok := b.ids[id]
	return ok
}

// Len 返回编号数。
func (b *BadIDs) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ids)
}
