package config

import (
	"formulaprep/internal/augment"
	"formulaprep/internal/diag"
	"formulaprep/internal/manifest"
	"formulaprep/internal/reconcile"
	"formulaprep/internal/rewrite"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知键在解析期失败。
type Config struct {
	Logging   diag.Options            `koanf:"logging"`
	Naming    Naming                  `koanf:"naming"`
	Manifest  manifest.Options        `koanf:"manifest"`
	Reconcile reconcile.Options       `koanf:"reconcile"`
	Filter    reconcile.FilterOptions `koanf:"filter"`
	Augment   Augment                 `koanf:"augment"`
	Rewrite   rewrite.Options         `koanf:"rewrite"`
	Pipeline  Pipeline                `koanf:"pipeline"`
	Output    Output                  `koanf:"output"`
}

// Naming: 图片文件命名约定，一次运行只用一种编号宽度。
type Naming struct {
	// IDDigits: 6 为当前格式，3 为旧格式。
	IDDigits   int      `koanf:"id_digits"`
	Extensions []string `koanf:"extensions"`
}

// Augment: 路径/备份 + 选择策略 + 变换与编码参数。
type Augment struct {
	augment.Options `koanf:",squash"`

	// Strategy: deterministic|random|all。
	Strategy string `koanf:"strategy"`
	// Count: 目标数量；<=0 时按 Ratio 推导。
	Count int     `koanf:"count"`
	Ratio float64 `koanf:"ratio"`
	// Seed: random 策略的种子。
	Seed int64 `koanf:"seed"`

	MaxAngle    float64 `koanf:"max_angle"`
	Scale       float64 `koanf:"scale"`
	Compression string  `koanf:"compression"`
	JPEGQuality int     `koanf:"jpeg_quality"`
}

// Pipeline: run 命令执行的阶段（有序）。
type Pipeline struct {
	Stages []string `koanf:"stages"`
}

// Output: 报告输出格式 text|json|yaml。
type Output struct {
	Format string `koanf:"format"`
}
