package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"formulaprep/pkg/contract"
)

const (
	// EnvPrefix: 环境变量前缀；层级以 "__" 分隔，如 FORMULAPREP_AUGMENT__SEED → augment.seed。
	EnvPrefix = "FORMULAPREP_"
	// DefaultFile: 未显式指定时尝试加载的配置文件。
	DefaultFile = "formulaprep.toml"
	// DefaultRatio: count 与 ratio 都未给出有效值时的增强比例。
	DefaultRatio = 0.1
)

// Defaults 返回扁平键的默认值。
func Defaults() map[string]any {
	return map[string]any{
		"logging.level":        "info",
		"logging.dir":          "logs",
		"logging.max_bytes":    int64(10 * 1024 * 1024),
		"naming.id_digits":     6,
		"naming.extensions":    []string{".png"},
		"manifest.repair":      false,
		"reconcile.manifest":   "",
		"reconcile.images":     "",
		"reconcile.bad_ids":    "",
		"reconcile.mode":       "auto",
		"reconcile.preview":    10,
		"filter.manifest":      "",
		"filter.output":        "",
		"filter.bad_ids":       "",
		"augment.images":       "",
		"augment.output":       "",
		"augment.manifest":     "",
		"augment.backup":       false,
		"augment.strategy":     "deterministic",
		"augment.count":        0,
		"augment.ratio":        DefaultRatio,
		"augment.seed":         int64(42),
		"augment.max_angle":    5.0,
		"augment.scale":        1.0,
		"augment.compression":  "default",
		"augment.jpeg_quality": 95,
		"rewrite.input":        "",
		"rewrite.output":       "",
		"rewrite.old_prefix":   "images/",
		"rewrite.new_prefix":   "",
		"rewrite.validate":     false,
		"rewrite.base_dir":     ".",
		"pipeline.stages":      []string{"reconcile", "augment", "rewrite"},
		"output.format":        "text",
	}
}

// 以逗号分隔的列表键（来自 ENV/CLI 时为字符串）。
var listKeys = []string{"naming.extensions", "pipeline.stages"}

// Source: 配置来源。优先级 CLI > ENV > 文件 > 默认。
type Source struct {
	// File: 配置文件路径；为空时尝试 DefaultFile（不存在则跳过）。
	File string
	// Overrides: CLI 覆盖（扁平键）。
	Overrides map[string]any
}

// Load 合并各来源并严格解码。返回的 koanf 实例供 config validate 打印生效值。
func Load(src Source) (*koanf.Koanf, Config, error) {
	var cfg Config
	k := koanf.New(".")
	defaults := Defaults()
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, cfg, err
	}

	path := strings.TrimSpace(src.File)
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	} else if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cfg, fmt.Errorf("%w: config file not found: %s", contract.ErrConfig, path)
		}
		return nil, cfg, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, cfg, fmt.Errorf("%w: load %s: %v", contract.ErrConfig, path, err)
		}
	}

	// 只接受已知键，拼错的环境变量不影响运行
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := envKey(s)
		if _, ok := defaults[key]; !ok {
			return ""
		}
		return key
	}), nil); err != nil {
		return nil, cfg, err
	}

	if len(src.Overrides) > 0 {
		if err := k.Load(confmap.Provider(src.Overrides, "."), nil); err != nil {
			return nil, cfg, err
		}
	}
	for _, key := range listKeys {
		if s, ok := k.Get(key).(string); ok {
			_ = k.Set(key, splitComma(s))
		}
	}

	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	})
	if err != nil {
		return nil, cfg, fmt.Errorf("%w: %v", contract.ErrConfig, err)
	}
	Normalize(&cfg)
	return k, cfg, nil
}

// Normalize 应用回退规则：ratio<=0 → DefaultRatio；预览钳制；扩展名补点。
func Normalize(cfg *Config) {
	if cfg.Augment.Ratio <= 0 {
		cfg.Augment.Ratio = DefaultRatio
	}
	if cfg.Augment.Count < 0 {
		cfg.Augment.Count = 0
	}
	for i, e := range cfg.Naming.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		cfg.Naming.Extensions[i] = e
	}
	cfg.Augment.Strategy = strings.ToLower(strings.TrimSpace(cfg.Augment.Strategy))
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
}

// envKey: FORMULAPREP_AUGMENT__MAX_ANGLE → augment.max_angle。
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
