package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/resolver"
	"github.com/quay/cvssadjust/vector"
)

// Config is the configuration file format.
//
// Flags given on the command line override the file.
type Config struct {
	Resolver resolver.Config `json:"resolver" yaml:"resolver"`
	Vector   vector.Config   `json:"vector" yaml:"vector"`
	// Engine names the scoring engine. See [scoring.Names].
	Engine   string `json:"engine" yaml:"engine"`
	LogLevel string `json:"log_level" yaml:"log_level"`
	// MetricsFile, if set, is where Prometheus metrics are written on exit.
	MetricsFile string `json:"metrics_file" yaml:"metrics_file"`
	// Trace, if set, is where OTel JSON formatted traces are written.
	Trace string `json:"trace" yaml:"trace"`
}

// LoadConfig reads the YAML configuration at "path".
func loadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	switch err := dec.Decode(&cfg); {
	case errors.Is(err, io.EOF):
	case err != nil:
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	switch strings.ToLower(s) {
	case "":
		l = slog.LevelWarn
	case "warning":
		l = slog.LevelWarn
	default:
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return l, err
		}
	}
	return l, nil
}

// Options is everything that comes from the command line.
type options struct {
	CVE        string
	Modify     string
	Base       bool
	Exploit    bool
	Impact     bool
	String     bool
	Verbose    bool
	Version    bool
	Severity   bool
	Generate   bool
	ConfigFile string

	// Overrides for Config values.
	root        string
	timeout     time.Duration
	retries     int
	compression string
	concurrency int
	engine      string
	strict      bool
	logLevel    string
	metricsFile string
	trace       string
}

func newFlagSet(o *options, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("cvssadjust", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ToLower(name))
	})
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cvssadjust -C CVE-ID [-m OVERLAY] [options] [CVE-ID...]\n       cvssadjust --generate [-m OVERLAY] [options]\n\n%s\n\n", description)
		fs.PrintDefaults()
	}

	fs.StringVarP(&o.CVE, "cve", "C", "", "CVE identity")
	fs.StringVarP(&o.Modify, "modify", "m", "", "modified CVSS base metric string (e.g. MAV:H/MC:H)")
	fs.BoolVarP(&o.Base, "base", "b", false, "report base score (default)")
	fs.BoolVarP(&o.Exploit, "exploit", "e", false, "report exploit score")
	fs.BoolVarP(&o.Impact, "impact", "i", false, "report impact score")
	fs.BoolVarP(&o.String, "string", "s", false, "report CVSS vector string")
	fs.BoolVarP(&o.Verbose, "verbose", "V", false, "verbose reporting")
	fs.BoolVarP(&o.Version, "version", "v", false, "show version information and exit")
	fs.BoolVar(&o.Severity, "severity", false, "report the qualitative severity of the reported score")
	fs.BoolVarP(&o.Generate, "generate", "g", false, "report every CVSS base vector and its score, instead of looking up records")
	fs.StringVar(&o.ConfigFile, "config", "", "YAML configuration file")

	fs.StringVar(&o.root, "root", resolver.DefaultRoot, "URL prefix records are fetched from")
	fs.DurationVar(&o.timeout, "timeout", resolver.DefaultTimeout, "timeout for a single record request")
	fs.IntVar(&o.retries, "retries", 0, "number of retries for transient fetch failures")
	fs.StringVar(&o.compression, "compression", "none", "record compression: "+strings.Join(resolver.Compressions(), ", "))
	fs.IntVar(&o.concurrency, "concurrency", 0, "maximum concurrent requests for multiple identifiers (default GOMAXPROCS)")
	fs.StringVar(&o.engine, "engine", "toolkit", "scoring engine")
	fs.BoolVar(&o.strict, "strict", false, "validate metric values and reject unknown overlay metrics")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	fs.StringVar(&o.trace, "trace", "", "write OTel JSON formatted traces to this file")
	return fs
}

// Apply overrides "cfg" with any flags that were set.
func (o *options) apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("root") {
		cfg.Resolver.Root = o.root
	}
	if fs.Changed("timeout") {
		cfg.Resolver.Timeout = cvssadjust.Duration(o.timeout)
	}
	if fs.Changed("retries") {
		cfg.Resolver.Retries = o.retries
	}
	if fs.Changed("compression") {
		cfg.Resolver.Compression = o.compression
	}
	if fs.Changed("concurrency") {
		cfg.Resolver.Concurrency = o.concurrency
	}
	if fs.Changed("engine") {
		cfg.Engine = o.engine
	}
	if fs.Changed("strict") {
		cfg.Vector.Strict = o.strict
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if fs.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if fs.Changed("trace") {
		cfg.Trace = o.trace
	}
}
