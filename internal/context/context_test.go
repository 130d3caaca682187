// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

func TestRPCMethod(t *testing.T) {
	ctx := context.Background()
	if _, ok := RPCMethod(ctx); ok {
		t.Fatal("expected no method in empty context")
	}
	ctx = WithRPCMethod(ctx, "echo")
	method, ok := RPCMethod(ctx)
	if !ok || method != "echo" {
		t.Fatalf("unexpected method %q", method)
	}
}

func TestQuitFunc_missing(t *testing.T) {
	_, err := QuitFunc(context.Background())
	var mcErr *MissingContextErr
	if !errors.As(err, &mcErr) {
		t.Fatalf("expected MissingContextErr, got %#v", err)
	}
	if mcErr.CtxKey != ctxQuitFunc {
		t.Fatalf("unexpected key %s", mcErr.CtxKey)
	}
}

func TestWithSignalCancel(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	repeated := make(chan struct{})
	ctx, cancel := WithSignalCancel(context.Background(), logger,
		func(_ os.Signal) { close(repeated) }, syscall.SIGUSR1)
	defer cancel()

	err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after signal")
	}

	err = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-repeated:
	case <-time.After(5 * time.Second):
		t.Fatal("repeated signal not reported")
	}
}

func TestMissingContextErr_code(t *testing.T) {
	_, err := QuitFunc(context.Background())
	resp := jsonrpc.NewResponse()
	resp.SetError(err, jsonrpc.ErrorOptions{})

	obj, ok := resp.ErrorObject()
	if !ok {
		t.Fatal("expected error object")
	}
	if obj["code"] != int(jsonrpc.Unavailable) {
		t.Fatalf("expected code %d, got %#v", jsonrpc.Unavailable, obj["code"])
	}
}
