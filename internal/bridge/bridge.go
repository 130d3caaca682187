// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/server"
	"github.com/hashicorp/sessionrpc/internal/rpc"
)

// Bridge serves the methods of a dispatcher over JSON-RPC 2.0
type Bridge struct {
	srvCtx     context.Context
	logger     *log.Logger
	srvOptions *jrpc2.ServerOptions
	dispatcher *rpc.Dispatcher
}

type ctxReqConcurrency struct{}

func NewBridge(srvCtx context.Context, d *rpc.Dispatcher) *Bridge {
	concurrency, ok := requestConcurrencyFromCtx(srvCtx)
	if !ok {
		concurrency = DefaultConcurrency()
	}

	opts := &jrpc2.ServerOptions{
		Concurrency: concurrency,
	}

	return &Bridge{
		srvCtx:     srvCtx,
		logger:     discardLogs,
		srvOptions: opts,
		dispatcher: d,
	}
}

func WithRequestConcurrency(parent context.Context, concurrency int) context.Context {
	return context.WithValue(parent, ctxReqConcurrency{}, concurrency)
}

func requestConcurrencyFromCtx(ctx context.Context) (int, bool) {
	c, ok := ctx.Value(ctxReqConcurrency{}).(int)
	return c, ok
}

func DefaultConcurrency() int {
	cpu := runtime.NumCPU()
	// Cap concurrency on powerful machines
	// to leave capacity for supervised processes
	if cpu >= 4 {
		return cpu / 2
	}
	return cpu
}

func (b *Bridge) SetLogger(logger *log.Logger) {
	b.srvOptions.Logger = jrpc2.StdLogger(logger)
	b.srvOptions.RPCLog = &rpcLogger{logger}
	b.logger = logger
}

func (b *Bridge) newService() server.Service {
	return newService(b.srvCtx, b.dispatcher, b.logger)
}

func (b *Bridge) startServer(reader io.Reader, writer io.WriteCloser) (*singleServer, error) {
	srv, err := Server(b.newService(), b.srvOptions)
	if err != nil {
		return nil, err
	}
	srv.Start(channel.LSP(reader, writer))

	return srv, nil
}

// StartAndWait serves a single connection on reader and writer
// until it is closed or the server context is cancelled.
func (b *Bridge) StartAndWait(reader io.Reader, writer io.WriteCloser) error {
	srv, err := b.startServer(reader, writer)
	if err != nil {
		return err
	}
	b.logger.Printf("Starting bridge (pid %d; concurrency: %d) ...",
		os.Getpid(), b.srvOptions.Concurrency)

	// Wrap waiter with a context so that we can cancel it here
	// after the connection is closed (and srv.Wait returns)
	ctx, cancelFunc := context.WithCancel(b.srvCtx)
	go func() {
		srv.Wait()
		cancelFunc()
	}()

	<-ctx.Done()
	b.logger.Printf("Stopping bridge (pid %d) ...", os.Getpid())
	srv.Stop()

	b.logger.Printf("Bridge (pid %d) stopped.", os.Getpid())
	return nil
}

// StartTCP accepts connections at address, serving each with its
// own server, until the server context is cancelled.
func (b *Bridge) StartTCP(address string) error {
	b.logger.Printf("Starting TCP bridge (pid %d; concurrency: %d) at %q ...",
		os.Getpid(), b.srvOptions.Concurrency, address)
	lst, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("TCP bridge failed to start: %s", err)
	}
	b.logger.Printf("TCP bridge running at %q", lst.Addr())

	return b.serve(lst)
}

func (b *Bridge) serve(lst net.Listener) error {
	accepter := server.NetAccepter(lst, channel.LSP)

	go func() {
		b.logger.Println("Starting loop server ...")
		err := server.Loop(b.srvCtx, accepter, b.newService, &server.LoopOptions{
			ServerOptions: b.srvOptions,
		})
		if err != nil {
			b.logger.Printf("Loop server failed to start: %s", err)
		}
	}()

	<-b.srvCtx.Done()
	b.logger.Printf("Stopping TCP bridge (pid %d) ...", os.Getpid())
	err := lst.Close()
	if err != nil {
		b.logger.Printf("TCP bridge (pid %d) failed to stop: %s", os.Getpid(), err)
		return err
	}

	b.logger.Printf("TCP bridge (pid %d) stopped.", os.Getpid())
	return nil
}

// singleServer is a wrapper around jrpc2.NewServer providing support
// for server.Service (Assigner/Finish interface)
type singleServer struct {
	srv        *jrpc2.Server
	finishFunc func(jrpc2.ServerStatus)
}

func Server(svc server.Service, opts *jrpc2.ServerOptions) (*singleServer, error) {
	assigner, err := svc.Assigner()
	if err != nil {
		return nil, err
	}

	return &singleServer{
		srv: jrpc2.NewServer(assigner, opts),
		finishFunc: func(status jrpc2.ServerStatus) {
			svc.Finish(assigner, status)
		},
	}, nil
}

func (ss *singleServer) Start(ch channel.Channel) {
	ss.srv = ss.srv.Start(ch)
}

func (ss *singleServer) Wait() {
	status := ss.srv.WaitStatus()
	ss.finishFunc(status)
}

func (ss *singleServer) Stop() {
	ss.srv.Stop()
}
