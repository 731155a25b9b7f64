// Command jsonrpc-serve serves the demo Arith service over HTTP (POST /rpc),
// WebSocket (/ws) and, with -tcp, the framed TCP protocol. With -etcd it
// announces -advertise under -service until it is stopped.
package main

import (
	"context"
	"github.com/juju/errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/gnuflag"
	"github.com/rs/zerolog"

	"mini-jsonrpc/config"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "jsonrpc-serve:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		addr, tcpAddr, etcd, service, advertise, maxBody, logLevel string
		rps                                                         float64
		burst                                                       int
	)
	flags := gnuflag.NewFlagSet("jsonrpc-serve", gnuflag.ContinueOnError)
	flags.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flags.StringVar(&tcpAddr, "tcp", "", "framed TCP listen address (disabled when empty)")
	flags.StringVar(&etcd, "etcd", "", "comma separated etcd endpoints to announce in")
	flags.StringVar(&service, "service", "arith", "service name to announce")
	flags.StringVar(&advertise, "advertise", "", "endpoint clients should use, e.g. http://10.0.0.5:8080/rpc")
	flags.StringVar(&maxBody, "max-body", "10 MiB", "largest request body accepted")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flags.Float64Var(&rps, "rate", 0, "requests per second admitted (0 disables)")
	flags.IntVar(&burst, "burst", 10, "rate limiter burst")
	if err := flags.Parse(true, args); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	limit, err := config.ParseByteSize(maxBody)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(log), server.WithMaxBodySize(int64(limit))}
	if etcd != "" {
		if advertise == "" {
			return errors.New("-advertise is required with -etcd")
		}
		reg, err := registry.NewEtcdRegistry(strings.Split(etcd, ","), 5*time.Second, log)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, service, registry.Endpoint{Addr: advertise, Weight: 1}))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.Logging(log))
	if rps > 0 {
		svr.Use(middleware.RateLimit(rps, burst))
	}
	if err := svr.Register(&Arith{}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/rpc", svr)
	mux.HandleFunc("/ws", svr.ServeWebSocket)
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	if tcpAddr != "" {
		l, err := net.Listen("tcp", tcpAddr)
		if err != nil {
			return err
		}
		go func() {
			if err := svr.Serve(l); err != nil {
				errc <- err
			}
		}()
	}
	log.Info().
		Str("http", addr).
		Str("tcp", tcpAddr).
		Str("max_body", humanize.IBytes(uint64(limit))).
		Msg("serving Arith")

	if err := svr.Announce(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error().Err(err).Msg("listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return svr.Shutdown(shutdownCtx)
}
