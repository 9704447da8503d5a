package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/vegasq/pqprefetch/config"
	"github.com/vegasq/pqprefetch/output"
	"github.com/vegasq/pqprefetch/physical"
	"github.com/vegasq/pqprefetch/s3uri"
)

// localBucket is the bucket of URIs naming local files.
const localBucket = "local"

// maxFiles limits glob expansion to prevent resource exhaustion.
const maxFiles = 1000

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pqprefetch <command> [options] <file.parquet|s3://bucket/key>...\n\n")
	fmt.Fprintf(w, "Inspect Parquet footers and simulate predictive column prefetching.\n\n")
	fmt.Fprintf(w, "IMPORTANT: All flags must come BEFORE file arguments.\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  layout    list the column chunks of each file\n")
	fmt.Fprintf(w, "  schema    list the leaf columns of each file\n")
	fmt.Fprintf(w, "  simulate  scan columns of each file in order, sharing prefetch state\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  pqprefetch layout data.parquet\n")
	fmt.Fprintf(w, "  pqprefetch schema -f csv s3://bucket/data.parquet\n")
	fmt.Fprintf(w, "  pqprefetch simulate -columns id,name -metrics 'data/*.parquet'\n")
}

// options are the flags shared by every command.
type options struct {
	format     string
	configPath string
	logLevel   string
	columns    string
	metrics    bool
}

func (o *options) register(fs *flag.FlagSet, command string) {
	fs.StringVar(&o.format, "f", "table", "Output format: table, json, csv")
	fs.StringVar(&o.configPath, "config", "", "YAML config file (env overrides use the "+config.EnvPrefix+"_ prefix)")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	if command == "simulate" {
		fs.StringVar(&o.columns, "columns", "", "Comma-separated columns to scan (default: all)")
		fs.BoolVar(&o.metrics, "metrics", false, "Print prefetch metrics after the report")
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	command := args[0]
	var handler func(ctx context.Context, e *env, locations []string) error
	switch command {
	case "layout":
		handler = runLayout
	case "schema":
		handler = runSchema
	case "simulate":
		handler = runSimulate
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", command)
		usage(stderr)
		return 1
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	opts.register(fs, command)
	if err := fs.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Error: missing parquet file argument\n\n")
		usage(stderr)
		return 1
	}

	e, err := newEnv(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	locations, err := expand(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := handler(ctx, e, locations); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// env carries what every command needs.
type env struct {
	opts      options
	cfg       *config.Config
	logger    log.Logger
	formatter output.Formatter
	stdout    io.Writer
}

func newEnv(opts options, stdout, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	formatter, err := output.New(opts.format, stdout)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return nil, err
	}

	return &env{opts: opts, cfg: cfg, logger: logger, formatter: formatter, stdout: stdout}, nil
}

func newLogger(lvl string, w io.Writer) (log.Logger, error) {
	var filter level.Option
	switch lvl {
	case "debug":
		filter = level.AllowDebug()
	case "info":
		filter = level.AllowInfo()
	case "warn":
		filter = level.AllowWarn()
	case "error":
		filter = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(logger, filter), nil
}

// expand resolves glob patterns among local locations. S3 locations are
// passed through.
func expand(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "s3://") || !strings.ContainsAny(arg, "*?[]") {
			out = append(out, arg)
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", arg)
		}
		out = append(out, matches...)
	}

	if len(out) > maxFiles {
		return nil, fmt.Errorf("arguments matched too many files (%d), maximum is %d", len(out), maxFiles)
	}
	return out, nil
}

// resolve maps locations to URIs and picks the fetcher able to read them.
// Local files and S3 objects cannot be mixed in one invocation.
func resolve(locations []string) ([]s3uri.URI, physical.Fetcher, error) {
	var uris []s3uri.URI
	remote := 0
	for _, loc := range locations {
		if strings.HasPrefix(loc, "s3://") {
			uri, err := s3uri.Parse(loc)
			if err != nil {
				return nil, nil, err
			}
			uris = append(uris, uri)
			remote++
			continue
		}
		uris = append(uris, s3uri.Of(localBucket, loc))
	}

	switch remote {
	case 0:
		return uris, physical.NewFileFetcher(""), nil
	case len(uris):
		sess, err := session.NewSession()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		return uris, physical.NewS3Fetcher(s3.New(sess)), nil
	default:
		return nil, nil, fmt.Errorf("cannot mix local files and s3:// locations")
	}
}

func displayName(uri s3uri.URI) string {
	if uri.Bucket == localBucket {
		return uri.Key
	}
	return uri.String()
}
