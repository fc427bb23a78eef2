package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"formulaprep/internal/augment"
	"formulaprep/internal/config"
	"formulaprep/internal/pipeline"
	"formulaprep/internal/report"
)

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Drop manifest records whose images are missing or flagged bad",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "JSONL manifest `FILE`"},
			&cli.StringFlag{Name: "images", Aliases: []string{"i"}, Usage: "image `DIR`"},
			&cli.StringFlag{Name: "bad-ids", Usage: "optional bad-ID list `FILE`"},
			&cli.StringFlag{Name: "mode", Usage: "auto|interactive|skip"},
			&cli.IntFlag{Name: "preview", Usage: "missing references shown in the report (max 10)"},
			digitsFlag(),
			repairFlag(),
		},
		Action: stageAction(pipeline.StageReconcile, reconcileBinds),
	}
}

func augmentCommand() *cli.Command {
	flags := append(selectionFlags(),
		&cli.StringFlag{Name: "output", Usage: "output `DIR`; empty augments in place"},
		&cli.BoolFlag{Name: "backup", Usage: "keep <name>.bak before overwriting in place"},
		&cli.Float64Flag{Name: "max-angle", Usage: "rotation bound in degrees"},
		&cli.StringFlag{Name: "compression", Usage: "PNG compression default|speed|best|none"},
	)
	return &cli.Command{
		Name:   "augment",
		Usage:  "Rotate a selected subset of images, copying or keeping the rest verbatim",
		Flags:  flags,
		Action: stageAction(pipeline.StageAugment, augmentBinds),
	}
}

func rewriteCommand() *cli.Command {
	return &cli.Command{
		Name:  "rewrite",
		Usage: "Replace the leading path prefix of every image reference in a manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"m"}, Usage: "JSONL manifest `FILE`"},
			&cli.StringFlag{Name: "output", Usage: "output manifest; empty overwrites input"},
			&cli.StringFlag{Name: "old-prefix", Usage: "prefix to replace"},
			&cli.StringFlag{Name: "new-prefix", Usage: "replacement prefix"},
			&cli.BoolFlag{Name: "validate", Usage: "check that rewritten paths exist"},
			&cli.StringFlag{Name: "base-dir", Usage: "base `DIR` for relative path validation"},
			repairFlag(),
		},
		Action: stageAction(pipeline.StageRewrite, rewriteBinds),
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the configured stages in order (reconcile, augment, rewrite)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "stages", Usage: "comma-separated stage list"},
		},
		Action: func(c *cli.Context) error {
			s, err := open(c, runBinds)
			if err != nil {
				return err
			}
			for _, st := range stagesOf(s.cfg) {
				if err := config.RequireStage(s.cfg, st); err != nil {
					s.close("pipeline", err)
					return err
				}
			}
			res, err := pipeline.Run(c.Context, s.parts.Components(), config.Settings(s.cfg), s.logger)
			return s.finish(c, "pipeline", res, err)
		},
	}
}

// stageAction 以单阶段流水线运行一个阶段，日志与进度与 run 一致。
func stageAction(stage string, binds []binding) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := open(c, binds, stage)
		if err != nil {
			return err
		}
		set := config.Settings(s.cfg)
		set.Stages = []string{stage}
		res, err := pipeline.Run(c.Context, s.parts.Components(), set, s.logger)
		return s.finish(c, stage, res, err)
	}
}

// finish 先输出已计算的报告，再返回阶段错误。
func (s *session) finish(c *cli.Context, comp string, res pipeline.Result, runErr error) error {
	werr := report.Write(s.stdout, s.cfg.Output.Format, res)
	s.close(comp, runErr)
	if runErr != nil {
		return runErr
	}
	return werr
}

func stagesOf(cfg config.Config) []string {
	if len(cfg.Pipeline.Stages) == 0 {
		return pipeline.DefaultStages
	}
	return cfg.Pipeline.Stages
}

func filterCommand() *cli.Command {
	return &cli.Command{
		Name:  "filter",
		Usage: "Drop manifest records that reference ids in a bad-ID list",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "JSONL manifest `FILE`"},
			&cli.StringFlag{Name: "output", Usage: "output manifest; empty overwrites input"},
			&cli.StringFlag{Name: "bad-ids", Usage: "bad-ID list `FILE`"},
			digitsFlag(),
			repairFlag(),
		},
		Action: func(c *cli.Context) error {
			s, err := open(c, filterBinds, "filter")
			if err != nil {
				return err
			}
			_, rep, err := s.parts.Reconciler.FilterByIDs(c.Context, s.cfg.Filter)
			werr := report.Write(s.stdout, s.cfg.Output.Format, rep)
			s.close("filter", err)
			if err != nil {
				return err
			}
			return werr
		},
	}
}

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "Preview which images a strategy would augment, without touching files",
		Flags: selectionFlags(),
		Action: func(c *cli.Context) error {
			s, err := open(c, selectionBinds, pipeline.StageAugment)
			if err != nil {
				return err
			}
			cands, sel, err := s.parts.Augment.Plan(c.Context, s.cfg.Augment.Options)
			if err != nil {
				s.close("select", err)
				return err
			}
			out := report.Selection{
				Strategy:   s.cfg.Augment.Strategy,
				Candidates: len(cands),
				Selected:   len(sel),
				Files:      augment.SelectedNames(cands, sel),
			}
			werr := report.Write(s.stdout, s.cfg.Output.Format, out)
			s.close("select", nil)
			return werr
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a configuration template (never overwrites)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   config.DefaultFile,
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("output")
					if err := config.WriteTemplate(path); err != nil {
						return fmt.Errorf("failed to initialize config: %w", err)
					}
					fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", path)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Load and validate the configuration, then print the effective values",
				Action: func(c *cli.Context) error {
					k, cfg, err := config.Load(config.Source{File: c.String("config"), Overrides: overrides(c, globalBinds)})
					if err != nil {
						return err
					}
					if err := config.Validate(cfg); err != nil {
						return err
					}
					if cfg.Output.Format == report.FormatText {
						fmt.Fprint(c.App.Writer, k.Sprint())
						fmt.Fprintln(c.App.Writer, "Configuration is valid")
						return nil
					}
					return report.Write(c.App.Writer, cfg.Output.Format, k.Raw())
				},
			},
		},
	}
}
