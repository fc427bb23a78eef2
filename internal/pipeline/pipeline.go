package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"formulaprep/internal/augment"
	"formulaprep/internal/diag"
	"formulaprep/internal/reconcile"
	"formulaprep/internal/rewrite"
	"formulaprep/pkg/contract"
)

// - 顺序执行：阶段按配置顺序逐个运行，阶段内部单线程。
// - 首错终止：任一阶段返回阶段级错误即停止，后续阶段不运行；已完成阶段的报告保留。
// - 单项失败（坏行、坏图）不是阶段错误，只体现在报告计数里。

// 阶段名。
const (
	StageReconcile = "reconcile"
	StageAugment   = "augment"
	StageRewrite   = "rewrite"
)

// DefaultStages: 数据流顺序。清理清单 → 增强图片 → 改写路径。
var DefaultStages = []string{StageReconcile, StageAugment, StageRewrite}

// Reconciler 由 reconcile.Reconciler 实现。
type Reconciler interface {
	Reconcile(ctx context.Context, opts reconcile.Options) ([]contract.Record, reconcile.Report, error)
}

// Augmenter 由 augment.Stage 实现。
type Augmenter interface {
	Run(ctx context.Context, opts augment.Options) (augment.Report, error)
}

// Rewriter 由 rewrite.Rewriter 实现。
type Rewriter interface {
	Rewrite(ctx context.Context, opts rewrite.Options) (rewrite.Report, error)
}

// Components 聚合各阶段实现；未启用的阶段可为 nil。
type Components struct {
	Reconciler Reconciler
	Augmenter  Augmenter
	Rewriter   Rewriter
}

// Settings 运行期配置。
type Settings struct {
	Stages    []string
	Reconcile reconcile.Options
	Augment   augment.Options
	Rewrite   rewrite.Options
}

// Result 汇总已运行阶段的报告；未运行的阶段为 nil。
type Result struct {
	Reconcile *reconcile.Report `json:"reconcile,omitempty" yaml:"reconcile,omitempty"`
	Augment   *augment.Report   `json:"augment,omitempty" yaml:"augment,omitempty"`
	Rewrite   *rewrite.Report   `json:"rewrite,omitempty" yaml:"rewrite,omitempty"`
	// Failed: 失败阶段名；成功为空。
	Failed string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// ValidateStages 校验阶段名合法且不重复。
func ValidateStages(stages []string) error {
	seen := map[string]bool{}
	for _, s := range stages {
		switch s {
		case StageReconcile, StageAugment, StageRewrite:
		default:
			return fmt.Errorf("%w: unknown stage %q", contract.ErrConfig, s)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate stage %q", contract.ErrConfig, s)
		}
		seen[s] = true
	}
	return nil
}

// Run 依次执行阶段。返回的 error 为首个阶段级错误（已包装阶段名，errors.Is 仍可判定哨兵）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	var res Result
	stages := set.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	if err := ValidateStages(stages); err != nil {
		return res, err
	}
	term := diag.GetTerminal()
	term.RunStart(stages)
	t0 := time.Now()
	run := logger.StartWithKV("pipeline", "run", "", map[string]string{"stages": strings.Join(stages, ",")})

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			res.Failed = st
			return res, finish(logger, run, term, t0, st, err)
		}
		var err error
		switch st {
		case StageReconcile:
			if comp.Reconciler == nil {
				err = missing(st)
				break
			}
			term.StageStart(st, -1)
			s0 := time.Now()
			var rep reconcile.Report
			_, rep, err = comp.Reconciler.Reconcile(ctx, set.Reconcile)
			res.Reconcile = &rep
			term.StageFinish(err == nil, time.Since(s0), rep.String())
		case StageAugment:
			if comp.Augmenter == nil {
				err = missing(st)
				break
			}
			// 进度与收尾由执行器自行汇报
			var rep augment.Report
			rep, err = comp.Augmenter.Run(ctx, set.Augment)
			res.Augment = &rep
		case StageRewrite:
			if comp.Rewriter == nil {
				err = missing(st)
				break
			}
			term.StageStart(st, -1)
			s0 := time.Now()
			var rep rewrite.Report
			rep, err = comp.Rewriter.Rewrite(ctx, set.Rewrite)
			res.Rewrite = &rep
			term.StageFinish(err == nil, time.Since(s0), rep.String())
		}
		if err != nil {
			res.Failed = st
			return res, finish(logger, run, term, t0, st, err)
		}
		diag.IncOp(st, "finish", "success")
	}
	run.Finish("run", int64(len(stages)))
	term.RunFinish(true, time.Since(t0))
	return res, nil
}

func missing(stage string) error {
	return fmt.Errorf("%w: stage %s not assembled", contract.ErrConfig, stage)
}

func finish(logger *diag.Logger, run *diag.Timer, term *diag.Terminal, t0 time.Time, stage string, err error) error {
	code := diag.Classify(err)
	logger.ErrorWithKV("pipeline", code, "stage failed: "+err.Error(), run.Since(), "", map[string]string{"stage": stage})
	diag.IncOp(stage, "error", "error")
	diag.IncError(stage, code)
	term.RunFinish(false, time.Since(t0))
	return fmt.Errorf("%s: %w", stage, err)
}
