package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keywordwei/graphql-loader/internal/config"
	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	language "github.com/keywordwei/graphql-loader/internal/language"
	"github.com/keywordwei/graphql-loader/internal/logging"
	"github.com/keywordwei/graphql-loader/internal/metrics"
	"github.com/keywordwei/graphql-loader/internal/otel"
	"github.com/keywordwei/graphql-loader/internal/server"
	source "github.com/keywordwei/graphql-loader/internal/source"
	"github.com/keywordwei/graphql-loader/internal/specialize"
	"github.com/keywordwei/graphql-loader/internal/walk"
	"github.com/sirupsen/logrus"
)

const rootUsage = `graphql-loader: specialize GraphQL query documents to the fields a caller needs

USAGE:
  graphql-loader <command> [flags]

COMMANDS:
  serve            Serve specialized queries over HTTP
  cut              Print the specialized query of one document
  check            Build every document and report configuration errors
  list             List the documents found in the documents directory
  help             Show help for any command
`

const commonUsage = `COMMON FLAGS:
  -config <file>                      YAML config file
  -env <file>                         .env file to load. Repeatable (default: .env)
  -documents <dir>                    Directory of <id>.gql documents (default: gql)
  -dictionaries <dir>                 Directory of <id>.js dictionaries (default: dict)
  -strict-fields                      Reject requested fields the dictionary does not declare
  -dictionary-timeout <duration>      Evaluation limit per dictionary file (default: 5s)
  -log.level <level>                  Log level (default: info)
  -log.format text|json               Log format (default: text)
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout (default: 10s)
  -server.max-body-bytes N            Request body limit in bytes (default: 1048576)
  -server.cors <origin>               Allowed CORS origin. Repeatable
  -server.metrics <bool>              Serve Prometheus metrics on /metrics (default: true)
  -warm                               Build every document before listening
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graphql-loader)

` + commonUsage

const cutUsage = `cut [flags] <document> [field...]
  With no fields every declared field is kept.

cut FLAGS:
  -format json|query|paths            Output format (default: json)

` + commonUsage

const checkUsage = `check [flags] [document...]
  With no documents every listed document is checked. Exits non-zero on
  any failure.

` + commonUsage

const listUsage = `list [flags]

` + commonUsage

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := args[0]
	cmdArgs := args[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, cmdArgs, stderr)
	case "cut":
		return cmdCut(ctx, cmdArgs, stdout, stderr)
	case "check":
		return cmdCheck(ctx, cmdArgs, stdout, stderr)
	case "list":
		return cmdList(cmdArgs, stdout, stderr)
	case "help", "-h", "-help", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "cut":
		fmt.Fprint(stdout, cutUsage)
	case "check":
		fmt.Fprint(stdout, checkUsage)
	case "list":
		fmt.Fprint(stdout, listUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// settings collects the flags of a command. A flag overrides the loaded
// configuration only when it is given on the command line.
type settings struct {
	fs      *flag.FlagSet
	usage   string
	cfgFile string
	envs    stringListFlag
	apply   map[string]func(*config.Config)
}

func newSettings(name, usage string) *settings {
	s := &settings{
		fs:    flag.NewFlagSet(name, flag.ContinueOnError),
		usage: usage,
		apply: map[string]func(*config.Config){},
	}
	s.fs.SetOutput(new(bytes.Buffer))
	s.fs.StringVar(&s.cfgFile, "config", "", "YAML config file")
	s.fs.Var(&s.envs, "env", ".env file to load")
	s.str("documents", "Directory of documents", func(c *config.Config, v string) { c.Documents = v })
	s.str("dictionaries", "Directory of dictionaries", func(c *config.Config, v string) { c.Dictionaries = v })
	s.boolean("strict-fields", "Reject undeclared fields", func(c *config.Config, v bool) { c.StrictFields = v })
	s.duration("dictionary-timeout", "Evaluation limit per dictionary", func(c *config.Config, v time.Duration) { c.DictionaryTimeout = v })
	s.str("log.level", "Log level", func(c *config.Config, v string) { c.Log.Level = v })
	s.str("log.format", "Log format", func(c *config.Config, v string) { c.Log.Format = v })
	return s
}

func (s *settings) str(name, usage string, set func(*config.Config, string)) {
	v := s.fs.String(name, "", usage)
	s.apply[name] = func(c *config.Config) { set(c, *v) }
}

func (s *settings) boolean(name, usage string, set func(*config.Config, bool)) {
	v := s.fs.Bool(name, false, usage)
	s.apply[name] = func(c *config.Config) { set(c, *v) }
}

func (s *settings) duration(name, usage string, set func(*config.Config, time.Duration)) {
	v := s.fs.Duration(name, 0, usage)
	s.apply[name] = func(c *config.Config) { set(c, *v) }
}

func (s *settings) int64(name, usage string, set func(*config.Config, int64)) {
	v := s.fs.Int64(name, 0, usage)
	s.apply[name] = func(c *config.Config) { set(c, *v) }
}

func (s *settings) list(name, usage string, set func(*config.Config, []string)) {
	var v stringListFlag
	s.fs.Var(&v, name, usage)
	s.apply[name] = func(c *config.Config) { set(c, v) }
}

// parse parses args and resolves the configuration: defaults, the config
// file, the environment and then explicit flags.
func (s *settings) parse(args []string, stderr io.Writer) (*config.Config, error) {
	if err := s.fs.Parse(args); err != nil {
		fmt.Fprint(stderr, s.usage)
		return nil, err
	}

	cfg := config.Default()
	if s.cfgFile != "" {
		var err error
		if cfg, err = config.Load(s.cfgFile); err != nil {
			return nil, err
		}
	}
	envs := []string(s.envs)
	if len(envs) == 0 {
		envs = []string{".env"}
	}
	if _, err := config.LoadEnv(envs...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	s.fs.Visit(func(f *flag.Flag) {
		if apply, ok := s.apply[f.Name]; ok {
			apply(cfg)
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// setup installs the event bus and its log subscriber and returns the
// service described by cfg.
func setup(cfg *config.Config, stderr io.Writer) (*specialize.Service, *logrus.Logger, error) {
	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	eventbus.Use(eventbus.New())
	logging.Subscribe(logger)

	layout, err := source.Layout{Documents: cfg.Documents, Dictionaries: cfg.Dictionaries}.Abs()
	if err != nil {
		return nil, nil, err
	}
	svc := specialize.NewService(source.FileSystem{}, layout,
		specialize.WithStrictFields(cfg.StrictFields),
		specialize.WithDictionaryTimeout(cfg.DictionaryTimeout),
	)
	return svc, logger, nil
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	s := newSettings("serve", serveUsage)
	s.str("server.addr", "HTTP listen address", func(c *config.Config, v string) { c.Server.Addr = v })
	s.boolean("server.pretty", "Pretty-print JSON responses", func(c *config.Config, v bool) { c.Server.Pretty = v })
	s.duration("server.timeout", "Per-request timeout", func(c *config.Config, v time.Duration) { c.Server.Timeout = v })
	s.int64("server.max-body-bytes", "Request body limit", func(c *config.Config, v int64) { c.Server.MaxBodyBytes = v })
	s.list("server.cors", "Allowed CORS origin", func(c *config.Config, v []string) { c.Server.CORS = v })
	s.boolean("server.metrics", "Serve Prometheus metrics", func(c *config.Config, v bool) { c.Server.Metrics = v })
	s.boolean("warm", "Build every document before listening", func(c *config.Config, v bool) { c.Warm = v })
	s.str("otel.endpoint", "OTLP collector endpoint", func(c *config.Config, v string) { c.Otel.Endpoint = v })
	s.str("otel.service", "OpenTelemetry service name", func(c *config.Config, v string) { c.Otel.Service = v })
	cfg, err := s.parse(args, stderr)
	if err != nil {
		return err
	}

	svc, logger, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if cfg.Warm {
		if err := svc.Check(ctx); err != nil {
			return fmt.Errorf("warm cache: %w", err)
		}
		logger.WithField("documents", svc.Cache().Len()).Info("cache warmed")
	}

	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORS) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORS...))
	}
	if cfg.Server.Metrics {
		m := metrics.New()
		m.Subscribe()
		sopts = append(sopts, server.WithMetrics(m.Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(svc, sopts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.WithFields(logrus.Fields{
		"addr":         cfg.Server.Addr,
		"documents":    svc.Layout().Documents,
		"dictionaries": svc.Layout().Dictionaries,
	}).Info("graphql-loader listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func cmdCut(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := newSettings("cut", cutUsage)
	format := s.fs.String("format", "json", "Output format")
	cfg, err := s.parse(args, stderr)
	if err != nil {
		return err
	}
	rest := s.fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, cutUsage)
		return fmt.Errorf("missing document")
	}
	switch *format {
	case "json", "query", "paths":
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	svc, _, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	var fields []string
	if len(rest) > 1 {
		fields = rest[1:]
	}
	res, err := svc.Document(rest[0]).Cut(ctx, fields)
	if err != nil {
		return err
	}

	switch *format {
	case "query":
		_, err = fmt.Fprintln(stdout, res.Query)
	case "paths":
		doc, perr := language.ParseQuery(rest[0], res.Query)
		if perr != nil {
			return perr
		}
		for _, p := range walk.Leaves(doc.Operations[0].SelectionSet) {
			if _, err = fmt.Fprintln(stdout, p); err != nil {
				break
			}
		}
	default:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	}
	return err
}

func cmdCheck(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := newSettings("check", checkUsage)
	cfg, err := s.parse(args, stderr)
	if err != nil {
		return err
	}
	svc, _, err := setup(cfg, stderr)
	if err != nil {
		return err
	}

	ids := s.fs.Args()
	if len(ids) == 0 {
		if ids, err = svc.Documents(); err != nil {
			return err
		}
	}
	if err := svc.CheckDocuments(ctx, ids...); err != nil {
		var cerr *specialize.CheckError
		if errors.As(err, &cerr) {
			fmt.Fprintf(stdout, "%d of %d document(s) ok\n", len(ids)-len(cerr.Failures), len(ids))
		}
		return err
	}
	fmt.Fprintf(stdout, "%d document(s) ok\n", len(ids))
	return nil
}

func cmdList(args []string, stdout, stderr io.Writer) error {
	s := newSettings("list", listUsage)
	cfg, err := s.parse(args, stderr)
	if err != nil {
		return err
	}
	svc, _, err := setup(cfg, stderr)
	if err != nil {
		return err
	}
	ids, err := svc.Documents()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(stdout, id)
	}
	return nil
}
