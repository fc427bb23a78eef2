package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"formulaprep/internal/config"
	"formulaprep/internal/diag"
	"formulaprep/pkg/contract"
)

const version = "0.1.0"

// 退出码：0 成功；1 运行期阶段失败；3 配置错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 执行一次 CLI 调用并返回退出码。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	if err := app.RunContext(ctx, args); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, contract.ErrConfig), errors.Is(err, contract.ErrUnknownStrategy):
		return exitConfig
	}
	return exitRuntime
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:      "formulaprep",
		Usage:     "Reconcile, augment and relocate formula image datasets",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default ./" + config.DefaultFile + " if present)",
			},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
			&cli.StringFlag{Name: "log-dir", Usage: "rotating log `DIR`; empty writes to stderr"},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Usage:   "report format text|json|yaml",
			},
			&cli.BoolFlag{Name: "status", Value: true, Usage: "progress hints on stderr"},
		},
		// 旗标解析错误按配置错误处理
		OnUsageError: usageError,
		// 错误由 run 统一打印并映射退出码
		ExitErrHandler: func(c *cli.Context, err error) {},
		Commands: []*cli.Command{
			reconcileCommand(),
			filterCommand(),
			selectCommand(),
			augmentCommand(),
			rewriteCommand(),
			runCommand(),
			configCommand(),
		},
	}
	setUsageError(app.Commands)
	return app
}

func usageError(c *cli.Context, err error, isSubcommand bool) error {
	return fmt.Errorf("%w: %v", contract.ErrConfig, err)
}

func setUsageError(cmds []*cli.Command) {
	for _, cmd := range cmds {
		cmd.OnUsageError = usageError
		setUsageError(cmd.Subcommands)
	}
}

// session: 一次命令调用的已解析配置与组件。
type session struct {
	cfg    config.Config
	parts  config.Parts
	logger *diag.Logger
	start  time.Time
	stdout io.Writer
}

// open 加载并校验配置、创建日志与终端、组装组件。stages 为本命令需要的阶段。
func open(c *cli.Context, binds []binding, stages ...string) (*session, error) {
	start := time.Now()
	_, cfg, err := config.Load(config.Source{File: c.String("config"), Overrides: overrides(c, append(globalBinds, binds...))})
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	for _, st := range stages {
		if err := config.RequireStage(cfg, st); err != nil {
			return nil, err
		}
	}
	logger := diag.NewLogger(uuid.NewString(), cfg.Logging)
	parts, err := config.Assemble(cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("%w: assemble: %v", contract.ErrConfig, err)
	}
	logger.Debug("config", "effective", "", map[string]string{
		"strategy": cfg.Augment.Strategy,
		"digits":   fmt.Sprintf("%d", cfg.Naming.IDDigits),
		"format":   cfg.Output.Format,
	})
	diag.SetTerminal(diag.NewTerminal(c.App.ErrWriter, c.Bool("status")))
	return &session{cfg: cfg, parts: parts, logger: logger, start: start, stdout: c.App.Writer}, nil
}

// close 记录命令级结果并释放日志与终端。
func (s *session) close(comp string, err error) {
	if err != nil {
		code := diag.Classify(err)
		s.logger.Error(comp, code, "first error: "+err.Error(), &s.start)
		diag.IncError(comp, code)
	} else {
		diag.ObserveDuration(comp, "finish", time.Since(s.start).Milliseconds())
	}
	diag.SetTerminal(nil)
	_ = s.logger.Close()
}
