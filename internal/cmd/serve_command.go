// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/sessionrpc/internal/bridge"
	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/handlers"
	"github.com/hashicorp/sessionrpc/internal/logging"
	"github.com/hashicorp/sessionrpc/internal/pathtpl"
	"github.com/hashicorp/sessionrpc/internal/process"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"github.com/hashicorp/sessionrpc/internal/session"
	"github.com/hashicorp/sessionrpc/internal/settings"
	"github.com/hashicorp/sessionrpc/internal/state"
	"github.com/mitchellh/cli"
)

const (
	defaultHTTPAddress    = "127.0.0.1:8787"
	defaultPollInterval   = 50 * time.Millisecond
	defaultShutdownWait   = 5 * time.Second
	defaultAsyncRetention = 10 * time.Minute
)

type ServeCommand struct {
	Ui      cli.Ui
	Version string

	// flags
	httpAddress    string
	port           int
	stdio          bool
	logFilePath    string
	configPath     string
	clientID       string
	cpuProfile     string
	memProfile     string
	reqConcurrency int
}

func (c *ServeCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("serve")

	fs.StringVar(&c.httpAddress, "http", defaultHTTPAddress, "address to serve HTTP requests at")
	fs.IntVar(&c.port, "port", 0, "port number to also serve JSON-RPC 2.0 on via TCP")
	fs.BoolVar(&c.stdio, "stdio", false, "also serve JSON-RPC 2.0 on stdin/stdout")
	fs.StringVar(&c.logFilePath, "log-file", "", "path to a file to log into with support "+
		"for variables (e.g. timestamp, pid, ppid, home) via Go template syntax {{ pid }}")
	fs.StringVar(&c.configPath, "config", "", "path to a JSON file with server options")
	fs.StringVar(&c.clientID, "client-id", "", "only accept requests of the client with this ID")
	fs.StringVar(&c.cpuProfile, "cpuprofile", "", "file into which to write CPU profile (if not empty)"+
		" with support for variables (e.g. timestamp, pid, ppid, home) via Go template"+
		" syntax {{ pid }}")
	fs.StringVar(&c.memProfile, "memprofile", "", "file into which to write memory profile (if not empty)"+
		" with support for variables (e.g. timestamp, pid, ppid, home) via Go template"+
		" syntax {{ pid }}")
	fs.IntVar(&c.reqConcurrency, "req-concurrency", 0, fmt.Sprintf("number of JSON-RPC 2.0 requests to process concurrently,"+
		" defaults to %d", bridge.DefaultConcurrency()))

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *ServeCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	if c.cpuProfile != "" {
		stop, err := writeCpuProfileInto(c.cpuProfile)
		defer stop()
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
	}

	if c.memProfile != "" {
		defer writeMemoryProfileInto(c.memProfile)
	}

	var logger *log.Logger
	if c.logFilePath != "" {
		fl, err := logging.NewFileLogger(c.logFilePath)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to setup file logging: %s", err))
			return 1
		}
		defer fl.Close()

		logger = fl.Logger()
	} else {
		logger = logging.NewLogger(os.Stderr)
	}

	opts, err := c.options(logger)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	ctx, cancelFunc := lsctx.WithSignalCancel(context.Background(), logger,
		func(sig os.Signal) {
			logger.Printf("Exiting without waiting for processes")
			os.Exit(1)
		},
		syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()

	if c.reqConcurrency != 0 {
		ctx = bridge.WithRequestConcurrency(ctx, c.reqConcurrency)
		logger.Printf("Custom request concurrency set to %d", c.reqConcurrency)
	}

	logger.Printf("Starting sessionrpc %s", c.Version)

	ctx = lsctx.WithServerVersion(ctx, c.Version)
	ctx = lsctx.WithQuitFunc(ctx, cancelFunc)

	err = c.serve(ctx, logger, opts)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	return 0
}

func (c *ServeCommand) options(logger *log.Logger) (*settings.Options, error) {
	opts := &settings.Options{}
	if c.configPath != "" {
		out, err := settings.LoadFile(c.configPath)
		if err != nil {
			return nil, fmt.Errorf("Failed to load config: %w", err)
		}
		if len(out.UnusedKeys) > 0 {
			logger.Printf("[WARN] Unknown config options: %q", out.UnusedKeys)
		}
		opts = out.Options
	}
	if c.clientID != "" {
		opts.ClientID = c.clientID
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ShutdownWait == 0 {
		opts.ShutdownWait = defaultShutdownWait
	}
	if opts.AsyncRetention == 0 {
		opts.AsyncRetention = defaultAsyncRetention
	}

	err := opts.Validate()
	if err != nil {
		return nil, fmt.Errorf("Invalid config: %w", err)
	}
	if opts.WorkingDir != "" {
		err = os.Chdir(opts.WorkingDir)
		if err != nil {
			return nil, err
		}
	}

	return opts, nil
}

func (c *ServeCommand) serve(ctx context.Context, logger *log.Logger, opts *settings.Options) error {
	ss, err := state.NewStateStore()
	if err != nil {
		return err
	}
	ss.SetLogger(logger)

	sup := process.NewSupervisor()
	sup.SetLogger(logger)

	quit, err := lsctx.QuitFunc(ctx)
	if err != nil {
		return err
	}
	sess := session.NewSession(quit)
	sess.SetClientID(opts.ClientID)
	sess.SetClientVersion(opts.ClientVersion)
	sess.SetMinClientVersion(opts.MinVersion())
	sess.SetServerVersion(opts.ProtocolVersion)
	sess.Exempt(opts.ExemptMethods...)

	reg := rpc.NewRegistry()
	err = handlers.Register(reg, handlers.Deps{
		Logger:     logger,
		Supervisor: sup,
		Session:    sess,
	})
	if err != nil {
		return err
	}
	reg.Freeze()

	d := rpc.NewDispatcher(reg, ss.AsyncCalls)
	d.SetLogger(logger)

	h := rpc.NewHTTPHandler(d, ss.AsyncCalls)
	h.SetLogger(logger)
	h.SetValidator(sess)

	lst, err := net.Listen("tcp", c.httpAddress)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}
	logger.Printf("HTTP server running at %q", lst.Addr())

	srv := &http.Server{
		Handler:           h.Instrumented(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		err := srv.Serve(lst)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server failed: %s", err)
		}
	}()

	go sup.Run(ctx, opts.PollInterval)
	go pruneAsyncCalls(ctx, logger, ss.AsyncCalls, opts.AsyncRetention)

	b := bridge.NewBridge(ctx, d)
	b.SetLogger(logger)
	if c.port != 0 {
		go func() {
			err := b.StartTCP(fmt.Sprintf("localhost:%d", c.port))
			if err != nil {
				logger.Printf("Failed to start TCP bridge: %s", err)
			}
		}()
	}
	if c.stdio {
		go func() {
			err := b.StartAndWait(os.Stdin, os.Stdout)
			if err != nil {
				logger.Printf("Failed to start bridge: %s", err)
			}
			quit()
		}()
	}

	err = sess.Activate()
	if err != nil {
		return err
	}

	<-ctx.Done()

	return shutdown(logger, sess, srv, sup, opts)
}

func shutdown(logger *log.Logger, sess *session.Session, srv *http.Server,
	sup *process.Supervisor, opts *settings.Options) error {
	logger.Printf("Shutting down (pid %d) ...", os.Getpid())

	var result *multierror.Error

	// quit_session already shut the session down
	_ = sess.Shutdown("server stopping")

	ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownWait)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("HTTP server: %w", err))
	}

	err = sup.TerminateAll()
	if err != nil {
		result = multierror.Append(result, err)
	}
	if !sup.Wait(ctx, opts.PollInterval, opts.ShutdownWait) {
		result = multierror.Append(result, fmt.Errorf("processes still running after %s", opts.ShutdownWait))
	}

	err = sess.Exit()
	if err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	logger.Printf("Server (pid %d) stopped.", os.Getpid())
	return nil
}

func pruneAsyncCalls(ctx context.Context, logger *log.Logger, calls *state.AsyncCallStore, retention time.Duration) {
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := calls.PruneDone(time.Now().Add(-retention))
			if err != nil {
				logger.Printf("failed to prune async calls: %s", err)
				continue
			}
			if n > 0 {
				logger.Printf("pruned %d unclaimed async responses", n)
			}
		}
	}
}

type stopFunc func() error

func writeCpuProfileInto(rawPath string) (stopFunc, error) {
	path, err := pathtpl.ParseRawPath("cpuprofile-path", rawPath)
	if err != nil {
		return func() error { return nil }, err
	}

	f, err := os.Create(path)
	if err != nil {
		return func() error { return nil }, fmt.Errorf("could not create CPU profile: %s", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		return f.Close, fmt.Errorf("could not start CPU profile: %s", err)
	}

	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}

func writeMemoryProfileInto(rawPath string) error {
	path, err := pathtpl.ParseRawPath("memprofile-path", rawPath)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %s", err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %s", err)
	}

	return nil
}

func (c *ServeCommand) Help() string {
	helpText := `
Usage: sessionrpc serve [options]

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *ServeCommand) Synopsis() string {
	return "Starts the session RPC server"
}
