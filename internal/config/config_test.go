package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaprep/internal/pipeline"
	"formulaprep/internal/reconcile"
	"formulaprep/pkg/contract"
)

// 在空目录里运行，避免读到工作目录下的 formulaprep.toml
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

// TestLoadDefaults 无文件无覆盖时得到内置默认值且通过校验。
func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	_, cfg, err := Load(Source{})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Naming.IDDigits)
	assert.Equal(t, []string{".png"}, cfg.Naming.Extensions)
	assert.Equal(t, "deterministic", cfg.Augment.Strategy)
	assert.Equal(t, DefaultRatio, cfg.Augment.Ratio)
	assert.Equal(t, int64(42), cfg.Augment.Seed)
	assert.Equal(t, reconcile.ModeAuto, cfg.Reconcile.Mode)
	assert.Equal(t, "images/", cfg.Rewrite.OldPrefix)
	assert.Equal(t, pipeline.DefaultStages, cfg.Pipeline.Stages)
	assert.NoError(t, Validate(cfg))
}

// TestLoadFile 文件覆盖默认，扩展名规范化。
func TestLoadFile(t *testing.T) {
	path, err := filepath.Abs("testdata/basic.toml")
	require.NoError(t, err)
	chdirTemp(t)
	_, cfg, err := Load(Source{File: path})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Naming.IDDigits)
	assert.Equal(t, []string{".png", ".jpg"}, cfg.Naming.Extensions)
	assert.Equal(t, reconcile.ModeInteractive, cfg.Reconcile.Mode)
	assert.Equal(t, "random", cfg.Augment.Strategy)
	assert.Equal(t, 5, cfg.Augment.Count)
	assert.Equal(t, int64(7), cfg.Augment.Seed)
	assert.Equal(t, 3.0, cfg.Augment.MaxAngle)
	assert.Equal(t, "images", cfg.Augment.Images)
	assert.Equal(t, []string{"reconcile", "augment"}, cfg.Pipeline.Stages)
	assert.NoError(t, Validate(cfg))
}

// TestLoadUnknownKey 未知键为配置错误。
func TestLoadUnknownKey(t *testing.T) {
	path, err := filepath.Abs("testdata/unknown.toml")
	require.NoError(t, err)
	chdirTemp(t)
	_, _, err = Load(Source{File: path})
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestLoadMissingFile 显式指定的文件不存在。
func TestLoadMissingFile(t *testing.T) {
	chdirTemp(t)
	_, _, err := Load(Source{File: "nope.toml"})
	assert.ErrorIs(t, err, contract.ErrConfig)
}

// TestPrecedence CLI > ENV > 文件 > 默认；列表键可用逗号串。
func TestPrecedence(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("[augment]\nseed = 1\ncount = 2\nratio = 0.5\n"), 0o644))
	t.Setenv("FORMULAPREP_AUGMENT__SEED", "2")
	t.Setenv("FORMULAPREP_AUGMENT__COUNT", "9")
	t.Setenv("FORMULAPREP_PIPELINE__STAGES", "rewrite, reconcile")
	t.Setenv("FORMULAPREP_AUGMENT__TYPO", "x")

	_, cfg, err := Load(Source{Overrides: map[string]any{"augment.count": 4}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cfg.Augment.Seed)
	assert.Equal(t, 4, cfg.Augment.Count)
	assert.Equal(t, 0.5, cfg.Augment.Ratio)
	assert.Equal(t, []string{"rewrite", "reconcile"}, cfg.Pipeline.Stages)
}

// TestNormalizeRatio 非正比例回退为默认。
func TestNormalizeRatio(t *testing.T) {
	cfg := Config{Augment: Augment{Ratio: -1, Count: -3, Strategy: " Random "}, Naming: Naming{Extensions: []string{"PNG"}}}
	Normalize(&cfg)
	assert.Equal(t, DefaultRatio, cfg.Augment.Ratio)
	assert.Equal(t, 0, cfg.Augment.Count)
	assert.Equal(t, "random", cfg.Augment.Strategy)
	assert.Equal(t, []string{".png"}, cfg.Naming.Extensions)
}

// TestValidate 各字段的非法值均为配置错误。
func TestValidate(t *testing.T) {
	chdirTemp(t)
	_, base, err := Load(Source{})
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"level":       func(c *Config) { c.Logging.Level = "trace" },
		"digits":      func(c *Config) { c.Naming.IDDigits = 4 },
		"extensions":  func(c *Config) { c.Naming.Extensions = nil },
		"mode":        func(c *Config) { c.Reconcile.Mode = "dry" },
		"strategy":    func(c *Config) { c.Augment.Strategy = "shuffle" },
		"ratio":       func(c *Config) { c.Augment.Ratio = 1.5 },
		"angle":       func(c *Config) { c.Augment.MaxAngle = 0 },
		"scale":       func(c *Config) { c.Augment.Scale = -1 },
		"compression": func(c *Config) { c.Augment.Compression = "ultra" },
		"prefix":      func(c *Config) { c.Rewrite.OldPrefix = "" },
		"stages":      func(c *Config) { c.Pipeline.Stages = []string{"augment", "render"} },
		"format":      func(c *Config) { c.Output.Format = "xml" },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			c.Naming.Extensions = append([]string(nil), base.Naming.Extensions...)
			mut(&c)
			assert.ErrorIs(t, Validate(c), contract.ErrConfig)
		})
	}
}

// TestRequireStage 阶段所需路径键。
func TestRequireStage(t *testing.T) {
	var cfg Config
	assert.ErrorIs(t, RequireStage(cfg, pipeline.StageReconcile), contract.ErrConfig)
	assert.ErrorIs(t, RequireStage(cfg, pipeline.StageAugment), contract.ErrConfig)
	assert.ErrorIs(t, RequireStage(cfg, pipeline.StageRewrite), contract.ErrConfig)
	assert.ErrorIs(t, RequireStage(cfg, "filter"), contract.ErrConfig)
	cfg.Reconcile.Mode = reconcile.ModeSkip
	assert.NoError(t, RequireStage(cfg, pipeline.StageReconcile))
	cfg.Augment.Images = "images"
	assert.NoError(t, RequireStage(cfg, pipeline.StageAugment))
}

// TestAssemble 通过注册表组装全部阶段。
func TestAssemble(t *testing.T) {
	chdirTemp(t)
	_, cfg, err := Load(Source{Overrides: map[string]any{"augment.strategy": "random"}})
	require.NoError(t, err)
	p, err := Assemble(cfg, nil)
	require.NoError(t, err)
	comp := p.Components()
	assert.NotNil(t, comp.Reconciler)
	assert.NotNil(t, comp.Augmenter)
	assert.NotNil(t, comp.Rewriter)
	assert.Equal(t, cfg.Pipeline.Stages, Settings(cfg).Stages)

	cfg.Augment.Compression = "ultra"
	_, err = Assemble(cfg, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestWriteTemplate 模板可被加载，且不覆盖已有文件。
func TestWriteTemplate(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, WriteTemplate(path))
	_, cfg, err := Load(Source{File: path})
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, "train.jsonl", cfg.Reconcile.Manifest)

	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))
	assert.Error(t, WriteTemplate(path))
	b, _ := os.ReadFile(path)
	assert.Equal(t, "keep", string(b))
}
