package contract

import "context"

// 以下为流水线上游阶段的外部协作者接口（校验源数据、抽取 LaTeX、渲染公式）。
// 本仓库只消费它们的产物（清单 + 图片目录），不提供实现。

// SourceRow: 源数据集的一行 {text, image-bytes}。
type SourceRow struct {
	Text  string
	Image []byte
}

// SchemaChecker 校验源数据的列结构。
type SchemaChecker interface {
	Check(ctx context.Context, path string) error
}

// FormulaExtractor 采样并产出合法的 LaTeX 行。
type FormulaExtractor interface {
	Extract(ctx context.Context, path string, yield func(idx int, row SourceRow) error) error
}

// LatexChecker 规范化并判定 LaTeX 字符串是否可用。
type LatexChecker interface {
	Normalize(latex string) (normalized string, valid bool)
}

// RenderParams: 渲染参数。
type RenderParams struct {
	DPI      int
	FontSize int
	Width    float64
	Height   float64
}

// RenderOutcome: 渲染结果。占位图单独计数，不并入成功。
type RenderOutcome int

const (
	Rendered RenderOutcome = iota
	// Placeholder: 渲染失败后写入了失败占位图（include_failed 策略）。
	Placeholder
	RenderFailed
)

func (o RenderOutcome) String() string {
	switch o {
	case Rendered:
		return "rendered"
	case Placeholder:
		return "placeholder"
	default:
		return "failed"
	}
}

// Renderer 将规范化的 LaTeX 渲染为图片文件。
type Renderer interface {
	Render(ctx context.Context, latex string, params RenderParams, dest string) (RenderOutcome, error)
}

// RenderTotals: 渲染阶段汇总。Placeholder 与 Rendered 分开统计。
type RenderTotals struct {
	Rendered    int
	Placeholder int
	Failed      int
}

// Add 按结果累加。
func (t *RenderTotals) Add(o RenderOutcome) {
	switch o {
	case Rendered:
		t.Rendered++
	case Placeholder:
		t.Placeholder++
	default:
		t.Failed++
	}
}
