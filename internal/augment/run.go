package augment

import (
	"context"
	"strings"

	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/pkg/contract"
	"formulaprep/plugins/index/imagedir"
)

// Options: augment 阶段的路径与备份配置（选择策略与变换参数由注册表组装）。
type Options struct {
	Images string `koanf:"images"`
	// Output: 为空表示原地增强。
	Output string `koanf:"output"`
	// Manifest: 可选；只增强被该清单引用的图片。
	Manifest string `koanf:"manifest"`
	Backup   bool   `koanf:"backup"`
}

// Stage 串起 候选 → 选择 → 执行。
type Stage struct {
	Index    *imagedir.Index
	Store    *manifest.Store
	Selector contract.Selector
	Executor *Executor
	// Logger 可为 nil。
	Logger *diag.Logger
}

// Plan 只计算候选与选中集合，不触碰文件。
func (s *Stage) Plan(ctx context.Context, opts Options) ([]contract.ImageEntry, contract.IndexSet, error) {
	if strings.TrimSpace(opts.Images) == "" {
		return nil, nil, errMissingImages
	}
	cands, err := candidates(ctx, s.Index, s.Store, opts.Images, opts.Manifest, s.Logger)
	if err != nil {
		return nil, nil, err
	}
	sel, err := s.Selector.Select(len(cands))
	if err != nil {
		return cands, nil, err
	}
	return cands, sel, nil
}

// Run 执行完整的增强阶段。
func (s *Stage) Run(ctx context.Context, opts Options) (Report, error) {
	cands, sel, err := s.Plan(ctx, opts)
	if err != nil {
		return Report{Candidates: len(cands)}, err
	}
	return s.Executor.Execute(ctx, Request{
		Candidates: cands,
		Selected:   sel,
		SrcDir:     opts.Images,
		DestDir:    opts.Output,
		Backup:     opts.Backup,
	})
}
