package main

import (
	"github.com/urfave/cli/v2"
)

// binding 将命令行旗标映射到配置键；只有显式给出的旗标才覆盖。
type binding struct {
	flag string
	key  string
}

var globalBinds = []binding{
	{"log-level", "logging.level"},
	{"log-dir", "logging.dir"},
	{"format", "output.format"},
}

var (
	reconcileBinds = []binding{
		{"manifest", "reconcile.manifest"},
		{"images", "reconcile.images"},
		{"bad-ids", "reconcile.bad_ids"},
		{"mode", "reconcile.mode"},
		{"preview", "reconcile.preview"},
		{"digits", "naming.id_digits"},
		{"repair", "manifest.repair"},
	}
	filterBinds = []binding{
		{"manifest", "filter.manifest"},
		{"output", "filter.output"},
		{"bad-ids", "filter.bad_ids"},
		{"digits", "naming.id_digits"},
		{"repair", "manifest.repair"},
	}
	selectionBinds = []binding{
		{"images", "augment.images"},
		{"manifest", "augment.manifest"},
		{"strategy", "augment.strategy"},
		{"count", "augment.count"},
		{"ratio", "augment.ratio"},
		{"seed", "augment.seed"},
		{"digits", "naming.id_digits"},
	}
	augmentBinds = append(append([]binding(nil), selectionBinds...),
		binding{"output", "augment.output"},
		binding{"backup", "augment.backup"},
		binding{"max-angle", "augment.max_angle"},
		binding{"compression", "augment.compression"},
	)
	rewriteBinds = []binding{
		{"input", "rewrite.input"},
		{"output", "rewrite.output"},
		{"old-prefix", "rewrite.old_prefix"},
		{"new-prefix", "rewrite.new_prefix"},
		{"validate", "rewrite.validate"},
		{"base-dir", "rewrite.base_dir"},
		{"repair", "manifest.repair"},
	}
	runBinds = []binding{
		{"stages", "pipeline.stages"},
	}
)

// overrides 收集显式设置的旗标值（IsSet 沿上下文链查找全局旗标）。
func overrides(c *cli.Context, binds []binding) map[string]any {
	out := map[string]any{}
	for _, b := range binds {
		if c.IsSet(b.flag) {
			out[b.key] = c.Value(b.flag)
		}
	}
	return out
}

func digitsFlag() cli.Flag {
	return &cli.IntFlag{Name: "digits", Usage: "image id width: 6 (current) or 3 (legacy)"}
}

func repairFlag() cli.Flag {
	return &cli.BoolFlag{Name: "repair", Usage: "try JSON repair on malformed manifest lines"}
}

func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "images", Aliases: []string{"i"}, Usage: "image `DIR`"},
		&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "only augment images referenced by this manifest"},
		&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "deterministic|random|all"},
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "number of images to select; <=0 uses ratio"},
		&cli.Float64Flag{Name: "ratio", Usage: "fraction of candidates when count <= 0"},
		&cli.Int64Flag{Name: "seed", Usage: "seed for the random strategy"},
		digitsFlag(),
	}
}
