// Package cli holds the command-line plumbing for intelcore: flag
// parsing, observation input and graceful shutdown.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/waftester/intelcore/pkg/config"
	"github.com/waftester/intelcore/pkg/defaults"
	"github.com/waftester/intelcore/pkg/engine"
	"github.com/waftester/intelcore/pkg/jsonutil"
)

// ErrNoInput is returned when neither a findings file nor a journal to
// replay was given.
var ErrNoInput = errors.New("cli: no input (use -findings or -replay)")

// Options holds the parsed command line.
type Options struct {
	ConfigPath   string
	FindingsPath string // JSONL observations, "-" for stdin
	ReplayPath   string // SQLite journal from an earlier session

	JSONOut string
	PDFOut  string

	MetricsAddr  string
	OTLPEndpoint string
	OTLPInsecure bool
	JournalPath  string
	JSONLPath    string

	Verbose   bool
	Quiet     bool
	NoSummary bool
	Version   bool
}

// Parse parses args (without the program name).
func Parse(args []string, stderr io.Writer) (*Options, error) {
	opts := &Options{}
	fs := flag.NewFlagSet(defaults.ToolName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags]\n\n", defaults.ToolName)
		fmt.Fprintln(stderr, "Correlates tool findings into attack opportunities, chains and a unified report.")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	// === INPUT ===
	fs.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.FindingsPath, "findings", "", "JSONL observations file (- for stdin)")
	fs.StringVar(&opts.ReplayPath, "replay", "", "Replay findings from a SQLite journal")

	// === REPORTS ===
	fs.StringVar(&opts.JSONOut, "json", "", "Write the unified report as JSON")
	fs.StringVar(&opts.PDFOut, "pdf", "", "Write the unified report as PDF")

	// === TELEMETRY ===
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", fmt.Sprintf("Serve Prometheus metrics (e.g. :%d)", defaults.MetricsPort))
	fs.StringVar(&opts.OTLPEndpoint, "otlp", "", "OTLP gRPC endpoint for traces (e.g. "+defaults.OTLPEndpoint+")")
	fs.BoolVar(&opts.OTLPInsecure, "otlp-insecure", false, "Disable TLS for the OTLP exporter")

	// === JOURNALS ===
	fs.StringVar(&opts.JournalPath, "journal", "", "Persist every event to a SQLite journal")
	fs.StringVar(&opts.JSONLPath, "jsonl", "", "Stream every event as JSONL")

	// === OUTPUT ===
	fs.BoolVar(&opts.Verbose, "v", false, "Verbose (debug) logging")
	fs.BoolVar(&opts.Quiet, "q", false, "Only log warnings and errors")
	fs.BoolVar(&opts.NoSummary, "no-summary", false, "Do not print the console summary")
	fs.BoolVar(&opts.Version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("cli: unexpected arguments: %v", fs.Args())
	}
	if opts.Version {
		return opts, nil
	}
	if opts.FindingsPath == "" && opts.ReplayPath == "" {
		return nil, ErrNoInput
	}
	return opts, nil
}

// Apply overlays command-line settings onto cfg. Flags win over the file.
func (o *Options) Apply(cfg *config.Config) {
	if o.MetricsAddr != "" {
		cfg.Telemetry.MetricsAddr = o.MetricsAddr
	}
	if o.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = o.OTLPEndpoint
		cfg.Telemetry.OTLPInsecure = o.OTLPInsecure
	}
	if o.JournalPath != "" {
		cfg.Output.Journal = o.JournalPath
	}
	if o.JSONLPath != "" {
		cfg.Output.JSONL = o.JSONLPath
	}
	if o.JSONOut != "" {
		cfg.Output.JSON = o.JSONOut
	}
	if o.PDFOut != "" {
		cfg.Output.PDF = o.PDFOut
	}
	switch {
	case o.Verbose:
		cfg.LogLevel = "debug"
	case o.Quiet:
		cfg.LogLevel = "warn"
	}
}

// ReadObservations decodes one observation per line.
func ReadObservations(r io.Reader) ([]engine.Observation, error) {
	var out []engine.Observation
	err := jsonutil.ReadLines(r, func(ob engine.Observation) error {
		out = append(out, ob)
		return nil
	})
	return out, err
}

// OpenInput opens path for reading; "-" is stdin.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
