// Command jsonrpc-call sends one JSON-RPC call, notification or batch and
// prints the result as JSON.
//
//	jsonrpc-call -endpoint http://127.0.0.1:8080/rpc Arith.Add '{"A":1,"B":2}'
//	jsonrpc-call -transport tcp -endpoint 127.0.0.1:9090 -notify Arith.Sleep '{"A":10}'
//	jsonrpc-call -config client.yaml -batch calls.json
//
// A batch file holds an array of {"method": ..., "params": ...} objects.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/rs/zerolog"

	"mini-jsonrpc/client"
	"mini-jsonrpc/config"
	"mini-jsonrpc/message"
)

type options struct {
	configPath string
	envFile    string
	endpoint   string
	transport  string
	batchPath  string
	notify     bool
	timeout    time.Duration
	verbose    bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "jsonrpc-call:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flags := gnuflag.NewFlagSet("jsonrpc-call", gnuflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&opts.endpoint, "endpoint", "", "server URL (http, ws) or host:port (tcp)")
	flags.StringVar(&opts.transport, "transport", "", "http, websocket or tcp")
	flags.StringVar(&opts.batchPath, "batch", "", "send the calls in this JSON file as one batch")
	flags.BoolVar(&opts.notify, "notify", false, "send a notification and do not wait for a reply")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (overrides config)")
	flags.BoolVar(&opts.verbose, "v", false, "log at debug level")
	flags.BoolVar(&opts.verbose, "verbose", false, "")
	if err := flags.Parse(true, args); err != nil {
		return err
	}

	if err := config.LoadEnvFiles(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.endpoint != "" {
		cfg.Endpoint = opts.endpoint
	}
	if opts.transport != "" {
		cfg.Transport = opts.transport
	}
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}
	if opts.verbose {
		cfg.LogLevel = zerolog.LevelDebugValue
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.Level()).
		With().Timestamp().Logger()

	cli, err := client.FromConfig(cfg, log)
	if err != nil {
		return err
	}
	defer cli.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.WithContext(ctx)

	if opts.batchPath != "" {
		return runBatch(ctx, cli, opts.batchPath)
	}

	rest := flags.Args()
	if len(rest) < 1 || len(rest) > 2 {
		return errors.New("usage: jsonrpc-call [flags] method [params-json]")
	}
	var params any
	if len(rest) == 2 {
		params = json.RawMessage(rest[1])
	}
	if opts.notify {
		return cli.Notify(ctx, rest[0], params)
	}
	result, err := cli.Request(ctx, rest[0], params)
	if err != nil {
		return describe(err)
	}
	return printJSON(result)
}

func runBatch(ctx context.Context, cli *client.Client, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Trace(err)
	}
	var raw []struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Annotatef(err, "parsing %s", path)
	}
	entries := make([]message.Entry, len(raw))
	for i, r := range raw {
		entries[i] = message.Entry{Method: r.Method}
		if len(r.Params) > 0 {
			entries[i].Params = r.Params
		}
	}

	results, err := cli.BatchRequest(ctx, entries)
	var batchErr *client.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return describe(err)
	}
	if perr := printJSON(results); perr != nil {
		return perr
	}
	if batchErr != nil {
		for pos, pe := range batchErr.Errors {
			fmt.Fprintf(os.Stderr, "[%d] %s: %s\n", pos, entries[pos].Method, pe)
		}
		return errors.Errorf("%d of %d calls failed", len(batchErr.Errors), len(entries))
	}
	return nil
}

// describe adds the error class to what is printed.
func describe(err error) error {
	var pe *client.ProtocolError
	switch {
	case errors.As(err, &pe):
		if len(pe.Data) > 0 {
			return errors.Errorf("server error %d: %s (data: %s)", pe.Code, pe.Message, pe.Data)
		}
		return errors.Errorf("server error %d: %s", pe.Code, pe.Message)
	case client.IsUnattributable(err):
		return errors.Annotate(err, "reply did not match the request")
	case client.IsParse(err):
		return errors.Annotate(err, "reply is not JSON-RPC")
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
