// Command intelcore correlates findings reported by security tools.
//
// Observations are read as JSONL (one engine.Observation per line) or
// replayed from a journal of an earlier session. After every reaction has
// drained, the unified report is printed and optionally written as JSON
// and PDF.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/waftester/intelcore/pkg/cli"
	"github.com/waftester/intelcore/pkg/config"
	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/duration"
	"github.com/waftester/intelcore/pkg/engine"
	"github.com/waftester/intelcore/pkg/intelligence"
	"github.com/waftester/intelcore/pkg/output/writers"
	"github.com/waftester/intelcore/pkg/report"
	"github.com/waftester/intelcore/pkg/ui"
)

func main() {
	ctx, cancel := cli.SignalContext(duration.SignalGrace)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.Version {
		fmt.Fprintf(stdout, "%s %s\n", defaults.ToolName, defaults.Version)
		return 0
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	obs, err := loadObservations(ctx, opts, logger)
	if err != nil {
		logger.Error("load observations", slog.Any("error", err))
		return 1
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		logger.Error("start engine", slog.Any("error", err))
		return 1
	}

	ids, err := eng.ReportFindings(ctx, obs)
	if err != nil {
		logger.Warn("some observations were rejected", slog.Any("error", err))
	}
	logger.Info("observations recorded", slog.Int("accepted", len(ids)), slog.Int("total", len(obs)))

	eng.Wait()
	r := eng.Report()

	code := 0
	if err := writeReports(cfg, r); err != nil {
		logger.Error("write report", slog.Any("error", err))
		code = 1
	}
	if !opts.NoSummary {
		if err := ui.PrintSummary(stdout, r); err != nil {
			code = 1
		}
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeouts.Shutdown)
	defer cancel()
	if err := eng.Close(closeCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
		code = 1
	}
	return code
}

func loadObservations(ctx context.Context, opts *cli.Options, logger *slog.Logger) ([]engine.Observation, error) {
	var obs []engine.Observation
	if opts.ReplayPath != "" {
		j, err := writers.OpenSQLiteJournal(opts.ReplayPath, logger)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		found, err := j.Findings(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			// Engine-derived findings are recomputed on replay.
			if f.Kind.Derived() || f.Source == cve.Source || f.Source == intelligence.Source {
				continue
			}
			obs = append(obs, engine.Observation{
				Kind:       f.Kind,
				Source:     f.Source,
				Target:     f.Target,
				Payload:    f.Payload,
				Confidence: f.Confidence,
			})
		}
	}
	if opts.FindingsPath != "" {
		in, err := cli.OpenInput(opts.FindingsPath)
		if err != nil {
			return nil, err
		}
		defer in.Close()
		more, err := cli.ReadObservations(in)
		if err != nil {
			return nil, err
		}
		obs = append(obs, more...)
	}
	return obs, nil
}

func writeReports(cfg *config.Config, r report.UnifiedReport) error {
	write := func(path string, fn func(io.Writer, report.UnifiedReport) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f, r); err != nil {
			f.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
		return f.Close()
	}
	return errors.Join(
		write(cfg.Output.JSON, report.WriteJSON),
		write(cfg.Output.PDF, report.WritePDF),
	)
}
