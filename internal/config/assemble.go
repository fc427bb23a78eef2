package config

import (
	"fmt"
	"strings"

	"formulaprep/internal/augment"
	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/internal/pipeline"
	"formulaprep/internal/reconcile"
	"formulaprep/internal/rewrite"
	"formulaprep/pkg/contract"
	"formulaprep/pkg/registry"
	"formulaprep/plugins/index/imagedir"
)

// Validate 对配置做静态校验；不检查路径是否存在（那是阶段运行时的配置错误）。
func Validate(cfg Config) error {
	bad := func(format string, a ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{contract.ErrConfig}, a...)...)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return bad("logging.level %q must be debug|info|warn|error", cfg.Logging.Level)
	}
	if cfg.Naming.IDDigits != imagedir.LegacyDigits && cfg.Naming.IDDigits != imagedir.DefaultDigits {
		return bad("naming.id_digits must be %d or %d, got %d", imagedir.LegacyDigits, imagedir.DefaultDigits, cfg.Naming.IDDigits)
	}
	if len(cfg.Naming.Extensions) == 0 {
		return bad("naming.extensions empty")
	}
	if _, err := reconcile.ParseMode(string(cfg.Reconcile.Mode)); err != nil {
		return err
	}
	if cfg.Reconcile.Preview < 0 || cfg.Reconcile.Preview > reconcile.MaxPreview {
		return bad("reconcile.preview must be in [0,%d], 0 means %d", reconcile.MaxPreview, reconcile.MaxPreview)
	}
	if _, err := registry.LookupSelector(cfg.Augment.Strategy); err != nil {
		return bad("augment.strategy: %v", err)
	}
	if cfg.Augment.Ratio > 1 {
		return bad("augment.ratio must be <= 1, got %v", cfg.Augment.Ratio)
	}
	if cfg.Augment.MaxAngle <= 0 || cfg.Augment.MaxAngle > 45 {
		return bad("augment.max_angle must be in (0,45], got %v", cfg.Augment.MaxAngle)
	}
	if cfg.Augment.Scale <= 0 {
		return bad("augment.scale must be > 0")
	}
	switch cfg.Augment.Compression {
	case "default", "speed", "best", "none":
	default:
		return bad("augment.compression %q must be default|speed|best|none", cfg.Augment.Compression)
	}
	if cfg.Rewrite.OldPrefix == "" {
		return bad("rewrite.old_prefix must not be empty")
	}
	if err := pipeline.ValidateStages(cfg.Pipeline.Stages); err != nil {
		return err
	}
	switch cfg.Output.Format {
	case "text", "json", "yaml":
	default:
		return bad("output.format %q must be text|json|yaml", cfg.Output.Format)
	}
	return nil
}

// RequireStage 检查某阶段运行所需的路径键已提供。
func RequireStage(cfg Config, stage string) error {
	need := func(key, v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required for %s", contract.ErrConfig, key, stage)
		}
		return nil
	}
	switch stage {
	case pipeline.StageReconcile:
		if cfg.Reconcile.Mode == reconcile.ModeSkip {
			return nil
		}
		if err := need("reconcile.manifest", cfg.Reconcile.Manifest); err != nil {
			return err
		}
		return need("reconcile.images", cfg.Reconcile.Images)
	case pipeline.StageAugment:
		return need("augment.images", cfg.Augment.Images)
	case pipeline.StageRewrite:
		return need("rewrite.input", cfg.Rewrite.Input)
	case "filter":
		if err := need("filter.manifest", cfg.Filter.Manifest); err != nil {
			return err
		}
		return need("filter.bad_ids", cfg.Filter.BadIDs)
	}
	return nil
}

// Parts 是组装结果，命令层按需取用。
type Parts struct {
	Index      *imagedir.Index
	Store      *manifest.Store
	Reconciler *reconcile.Reconciler
	Augment    *augment.Stage
	Rewriter   *rewrite.Rewriter
}

// Assemble 通过注册表构造各阶段组件。严格选项解析在注册表工厂中进行。
func Assemble(cfg Config, logger *diag.Logger) (Parts, error) {
	var p Parts
	idx, err := imagedir.New(&imagedir.Options{Extensions: cfg.Naming.Extensions, IDDigits: cfg.Naming.IDDigits})
	if err != nil {
		return p, err
	}
	store := manifest.New(&cfg.Manifest)

	newSel, err := registry.LookupSelector(cfg.Augment.Strategy)
	if err != nil {
		return p, err
	}
	selOpts := map[string]any{"count": cfg.Augment.Count, "ratio": cfg.Augment.Ratio}
	if cfg.Augment.Strategy == "random" {
		selOpts["seed"] = cfg.Augment.Seed
	}
	sel, err := newSel(selOpts)
	if err != nil {
		return p, err
	}
	newT, err := registry.LookupTransform("rotate")
	if err != nil {
		return p, err
	}
	tr, err := newT(map[string]any{"max_angle": cfg.Augment.MaxAngle, "scale": cfg.Augment.Scale})
	if err != nil {
		return p, err
	}
	codec, err := registry.NewCodec(map[string]any{"compression": cfg.Augment.Compression, "jpeg_quality": cfg.Augment.JPEGQuality})
	if err != nil {
		return p, err
	}

	p.Index = idx
	p.Store = store
	p.Reconciler = reconcile.New(idx, store, logger)
	p.Augment = &augment.Stage{
		Index:    idx,
		Store:    store,
		Selector: sel,
		Executor: augment.NewExecutor(tr, codec, logger),
		Logger:   logger,
	}
	p.Rewriter = rewrite.New(store, logger)
	return p, nil
}

// Components 将组装结果转为流水线组件。
func (p Parts) Components() pipeline.Components {
	return pipeline.Components{Reconciler: p.Reconciler, Augmenter: p.Augment, Rewriter: p.Rewriter}
}

// Settings 从配置提取流水线设置。
func Settings(cfg Config) pipeline.Settings {
	return pipeline.Settings{
		Stages:    cfg.Pipeline.Stages,
		Reconcile: cfg.Reconcile,
		Augment:   cfg.Augment.Options,
		Rewrite:   cfg.Rewrite,
	}
}
