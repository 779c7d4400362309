package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"coderunner/internal/judge/app"
	"coderunner/internal/judge/model"
	"coderunner/internal/judge/remote/judge0"
	sandboxconfig "coderunner/internal/judge/sandbox/config"
	"coderunner/internal/judge/sandbox/result"
	"coderunner/internal/judge/sandbox/runner"
	"coderunner/pkg/utils/logger"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "runnerctl",
		Usage: "evaluate code with the runner's execution engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "runner YAML config"},
			&cli.StringFlag{Name: "env", Value: ".env", Usage: "env file loaded before the config"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := app.LoadEnvFile(cmd.String("env")); err != nil {
				return ctx, err
			}
			err := logger.Init(logger.Config{Level: cmd.String("log-level"), OutputPath: "stderr", ErrorPath: os.DevNull})
			return ctx, err
		},
		Commands: []*cli.Command{
			{
				Name:      "eval",
				Usage:     "evaluate a TOML job file in-process",
				ArgsUsage: "[job.toml]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Usage: "job file"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "stop, count or collect (overrides the job)"},
					&cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: "local or judge0 (overrides the config)"},
					&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
				},
				Action: evalAction,
			},
			{
				Name:   "languages",
				Usage:  "print the language table",
				Action: languagesAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func evalAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("job")
	if path == "" {
		path = cmd.Args().First()
	}
	if path == "" {
		return fmt.Errorf("a job file is required")
	}
	j, err := loadJob(path)
	if err != nil {
		return err
	}
	rawMode := j.Mode
	if m := cmd.String("mode"); m != "" {
		rawMode = m
	}
	mode, ok := model.ParseMode(rawMode)
	if !ok {
		return fmt.Errorf("unknown mode %q", rawMode)
	}

	if b := cmd.String("backend"); b != "" {
		if err := os.Setenv(app.EnvBackend, b); err != nil {
			return err
		}
	}
	cfg, err := app.LoadAppConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	rt, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Service.Evaluate(ctx, j.submission(), j.testCases(), mode)
	if err != nil {
		return err
	}
	return report(os.Stdout, res, cmd.Bool("json"))
}

// report prints res and exits with status 2 unless every test passed.
func report(w io.Writer, res result.EvaluationResult, asJSON bool) error {
	if asJSON {
		if err := printJSON(w, res); err != nil {
			return err
		}
	} else {
		printResult(w, res)
	}
	if !passed(res) {
		return cli.Exit("", 2)
	}
	return nil
}

func languagesAction(ctx context.Context, cmd *cli.Command) error {
	var cfg app.AppConfig
	if path := cmd.String("config"); path != "" {
		loaded, err := app.LoadAppConfig(path)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	local := runner.NewLocalBackend(nil, nil, nil)
	remote := judge0.NewBackend(nil)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tCOMPILED\tLOCAL IMAGE\tJUDGE0 ID")
	for _, lang := range sandboxconfig.NewLocalRepository(cfg.Languages).Enabled() {
		image := "-"
		if local.Supports(lang) {
			image = lang.Image
		}
		remoteID := "-"
		if remote.Supports(lang) {
			remoteID = fmt.Sprint(lang.RemoteID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n", lang.ID, lang.Name, lang.Version, lang.CompileEnabled, image, remoteID)
	}
	return w.Flush()
}

func passed(res result.EvaluationResult) bool {
	switch res.Kind {
	case result.KindAccepted:
		return true
	case result.KindCounted:
		return res.Passed == res.Total
	case result.KindRawOutputs:
		for _, o := range res.Outputs {
			if o.Error != "" {
				return false
			}
		}
		return true
	}
	return false
}

func printJSON(w io.Writer, res result.EvaluationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func printResult(w io.Writer, res result.EvaluationResult) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	switch res.Kind {
	case result.KindAccepted:
		fmt.Fprintf(w, "%s %s\n", green(result.VerdictAC.DisplayName()), res.Message)
	case result.KindFailed:
		fmt.Fprintf(w, "%s %s\n", red(res.Verdict.DisplayName()), res.Message)
		if f := res.Failure; f != nil {
			fmt.Fprintf(w, "  test #%d\n", f.TestIndex+1)
			fmt.Fprintf(w, "  %s %s\n", dim("input:   "), oneLine(f.Input))
			fmt.Fprintf(w, "  %s %s\n", dim("expected:"), oneLine(f.Expected))
			fmt.Fprintf(w, "  %s %s\n", dim("output:  "), oneLine(f.Actual))
		}
	case result.KindCounted:
		paint := green
		if res.Passed != res.Total {
			paint = red
		}
		fmt.Fprintf(w, "%s test cases passed\n", paint(fmt.Sprintf("%d/%d", res.Passed, res.Total)))
	case result.KindRawOutputs:
		for i, o := range res.Outputs {
			if o.Error != "" {
				fmt.Fprintf(w, "#%d %s %s\n", i+1, red("error"), oneLine(o.Error))
				continue
			}
			fmt.Fprintf(w, "#%d %s %s\n", i+1, green("ok"), oneLine(o.Output))
		}
	}
}

func oneLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return strings.ReplaceAll(s, "\n", `\n`)
}
