package augment

import (
	"context"
	"fmt"
	"strconv"

	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/pkg/contract"
	"formulaprep/plugins/index/imagedir"
)

// Candidates 列出增强候选：目录索引的全部条目（字典序）。
// manifestPath 非空时只保留被该清单中可解码记录引用到的编号，结果去重且保持字典序。
func Candidates(ctx context.Context, index *imagedir.Index, store *manifest.Store, images, manifestPath string) ([]contract.ImageEntry, error) {
	return candidates(ctx, index, store, images, manifestPath, nil)
}

// candidates 同 Candidates；清单过滤后为空而目录非空时记一条告警
// （编号只从 .png 文件名提取，其他扩展名的图片不会被清单引用匹配）。
func candidates(ctx context.Context, index *imagedir.Index, store *manifest.Store, images, manifestPath string, logger *diag.Logger) ([]contract.ImageEntry, error) {
	entries, err := index.Scan(ctx, images)
	if err != nil {
		return nil, err
	}
	if manifestPath == "" {
		return entries, nil
	}
	lines, _, err := store.Load(ctx, manifestPath)
	if err != nil {
		return nil, err
	}
	ref := map[contract.ItemID]struct{}{}
	p := index.Pattern()
	for _, rec := range manifest.Records(lines) {
		for _, img := range rec.Images {
			if id := p.Extract(img); id != "" {
				ref[id] = struct{}{}
			}
		}
	}
	out := make([]contract.ImageEntry, 0, len(ref))
	seen := map[contract.ItemID]struct{}{}
	for _, e := range entries {
		if !e.HasID() {
			continue
		}
		if _, ok := ref[e.ID]; !ok {
			continue
		}
		// 同一编号多个文件（不同扩展名）时只取第一个
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 && len(entries) > 0 {
		logger.Warn("augment", "manifest filter matched no indexed image", manifestPath, map[string]string{
			"indexed":    strconv.Itoa(len(entries)),
			"referenced": strconv.Itoa(len(ref)),
		})
	}
	return out, nil
}

// SelectedNames 返回选中候选的文件名（按下标升序），用于预览。
func SelectedNames(cands []contract.ImageEntry, sel contract.IndexSet) []string {
	out := make([]string, 0, len(sel))
	for _, i := range sel.Sorted() {
		if i >= 0 && i < len(cands) {
			out = append(out, cands[i].Name)
		}
	}
	return out
}

var errMissingImages = fmt.Errorf("%w: augment requires images directory", contract.ErrConfig)
