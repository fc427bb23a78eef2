package imagedir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"formulaprep/pkg/contract"
)

// Options 为图片目录索引的可选配置。
type Options struct {
	// Extensions: 允许的扩展名（大小写不敏感，含点，如 [".png"]）。
	// 为空时采用默认 [".png"]。
	Extensions []string `koanf:"extensions"`
	// IDDigits: 文件名编号宽度（3 为旧格式，6 为当前格式）。0 表示默认 6。
	IDDigits int `koanf:"id_digits"`
}

// Index 扫描单层图片目录，产出按文件名字典序排列的 ImageEntry。
// 目录快照只在调用时刻有效；调用期间目录被外部修改的结果未定义。
type Index struct {
	allow   map[string]struct{}
	pattern *Pattern
}

// New 创建目录索引。IDDigits 非法时返回 ErrInvalidInput。
func New(opts *Options) (*Index, error) {
	digits := DefaultDigits
	var exts []string
	if opts != nil {
		if opts.IDDigits != 0 {
			digits = opts.IDDigits
		}
		exts = opts.Extensions
	}
	p, err := NewPattern(digits)
	if err != nil {
		return nil, err
	}
	if len(exts) == 0 {
		exts = []string{".png"}
	}
	allow := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allow[e] = struct{}{}
	}
	return &Index{allow: allow, pattern: p}, nil
}

// Pattern 返回本索引使用的编号模式。
func (x *Index) Pattern() *Pattern { return x.pattern }

// Allowed 报告文件名的扩展名是否在允许列表中。
func (x *Index) Allowed(name string) bool {
	_, ok := x.allow[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scan 列出 dir 下所有允许扩展名的常规文件（不递归）。
// 指向常规文件的符号链接计入；目录与其他非常规文件忽略。
// dir 不存在或不是目录时返回包装了 ErrConfig 的错误。
func (x *Index) Scan(ctx context.Context, dir string) ([]contract.ImageEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: image directory not found: %s", contract.ErrConfig, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", contract.ErrConfig, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]contract.ImageEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !x.Allowed(e.Name()) {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(filepath.Join(dir, e.Name()))
			if err != nil || !t.Mode().IsRegular() {
				// 悬空链接或指向目录：忽略
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		out = append(out, contract.ImageEntry{Name: e.Name(), ID: x.pattern.Extract(e.Name())})
	}
	return out, nil
}

// Set 是一次扫描的编号集合视图，提供存在性查询。
type Set struct {
	ids   map[contract.ItemID]string
	names map[string]struct{}
}

// NewSet 由扫描结果构造查询集合。同一编号对应多个文件时保留字典序第一个。
func NewSet(entries []contract.ImageEntry) *Set {
	s := &Set{ids: make(map[contract.ItemID]string, len(entries)), names: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		s.names[e.Name] = struct{}{}
		if !e.HasID() {
			continue
		}
		if _, dup := s.ids[e.ID]; !dup {
			s.ids[e.ID] = e.Name
		}
	}
	return s
}

// Has 报告编号是否存在。
func (s *Set) Has(id contract.ItemID) bool {
	if s == nil || id == "" {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// HasName 报告文件名是否存在。
func (s *Set) HasName(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[name]
	return ok
}

// Len 返回带编号的文件数。
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}
