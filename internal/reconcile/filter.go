package reconcile

import (
	"context"
	"fmt"
	"strings"

	"formulaprep/pkg/contract"
)

// FilterOptions: 按 bad-ID 列表人工过滤清单（interactive 核对之后的后续步骤）。
type FilterOptions struct {
	Manifest string `koanf:"manifest"`
	// Output: 输出清单；为空时原地覆盖 Manifest。
	Output string `koanf:"output"`
	BadIDs string `koanf:"bad_ids"`
}

// FilterReport: 过滤结果。
type FilterReport struct {
	Output       string `json:"output" yaml:"output"`
	BadIDs       int    `json:"bad_ids" yaml:"bad_ids"`
	Total        int    `json:"total" yaml:"total"`
	Kept         int    `json:"kept" yaml:"kept"`
	Removed      int    `json:"removed" yaml:"removed"`
	DecodeErrors int    `json:"decode_errors" yaml:"decode_errors"`
}

// String 返回单行摘要。
func (r FilterReport) String() string {
	return fmt.Sprintf("filter: total=%d kept=%d removed=%d (decode=%d) bad_ids=%d -> %s",
		r.Total, r.Kept, r.Removed, r.DecodeErrors, r.BadIDs, r.Output)
}

// FilterByIDs 丢弃任一图片编号在 bad-ID 列表中的记录，其余原样写出。
// 无法解码的行同样丢弃（无法原样写回）。
func (r *Reconciler) FilterByIDs(ctx context.Context, opts FilterOptions) ([]contract.Record, FilterReport, error) {
	out := opts.Output
	if strings.TrimSpace(out) == "" {
		out = opts.Manifest
	}
	rep := FilterReport{Output: out}
	if strings.TrimSpace(opts.Manifest) == "" || strings.TrimSpace(opts.BadIDs) == "" {
		return nil, rep, fmt.Errorf("%w: filter requires manifest and bad_ids", contract.ErrConfig)
	}
	tm := r.logger.StartWithKV("filter", "filter", opts.Manifest, map[string]string{"output": out})
	bad, err := LoadBadIDs(opts.BadIDs, r.index.Pattern())
	if err != nil {
		r.fail(tm, err, "bad-id list failed")
		return nil, rep, err
	}
	rep.BadIDs = bad.Len()
	lines, _, err := r.store.Load(ctx, opts.Manifest)
	if err != nil {
		r.fail(tm, err, "load failed")
		return nil, rep, err
	}
	p := r.index.Pattern()
	kept := make([]contract.Record, 0, len(lines))
	for _, e := range lines {
		rep.Total++
		if !e.OK() {
			rep.DecodeErrors++
			continue
		}
		drop := false
		for _, ref := range e.Record.Images {
			if bad.Has(p.Extract(ref)) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e.Record)
		}
	}
	rep.Kept = len(kept)
	rep.Removed = rep.Total - rep.Kept
	if err := r.store.Save(ctx, out, kept); err != nil {
		r.fail(tm, err, "save failed")
		return kept, rep, err
	}
	tm.Finish("filter", int64(rep.Total))
	return kept, rep, nil
}
