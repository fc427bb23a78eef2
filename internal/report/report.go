package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"formulaprep/internal/pipeline"
	"formulaprep/pkg/contract"
)

// 输出格式。
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Selection 为 select 命令的预览结果：只列出将被增强的文件，不触碰文件。
type Selection struct {
	Strategy   string   `json:"strategy" yaml:"strategy"`
	Candidates int      `json:"candidates" yaml:"candidates"`
	Selected   int      `json:"selected" yaml:"selected"`
	Files      []string `json:"files" yaml:"files"`
}

// String 第一行摘要，其后每行一个文件名。
func (s Selection) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "select[%s]: candidates=%d selected=%d", s.Strategy, s.Candidates, s.Selected)
	for _, f := range s.Files {
		b.WriteString("\n  ")
		b.WriteString(f)
	}
	return b.String()
}

// Text 将流水线结果渲染为多行文本；未运行的阶段不出现。
func Text(res pipeline.Result) string {
	var lines []string
	if r := res.Reconcile; r != nil {
		lines = append(lines, r.String())
	}
	if r := res.Augment; r != nil {
		lines = append(lines, r.String())
		if n := r.Totals.Failed; n > 0 {
			lines = append(lines, "  failed items:")
			for _, it := range r.Items {
				if it.Outcome == contract.Failed {
					lines = append(lines, "    "+it.Name)
				}
			}
		}
	}
	if r := res.Rewrite; r != nil {
		lines = append(lines, r.String())
	}
	if res.Failed != "" {
		lines = append(lines, "failed at: "+res.Failed)
	}
	return strings.Join(lines, "\n")
}

// Write 按格式输出 v。text 下 pipeline.Result 走 Text，其余值使用 fmt.Stringer 或 %v。
func Write(w io.Writer, format string, v any) error {
	switch format {
	case "", FormatText:
		var s string
		switch x := v.(type) {
		case pipeline.Result:
			s = Text(x)
		case fmt.Stringer:
			s = x.String()
		default:
			s = fmt.Sprintf("%v", v)
		}
		if s == "" {
			return nil
		}
		_, err := io.WriteString(w, s+"\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: unknown output format %q", contract.ErrConfig, format)
}
