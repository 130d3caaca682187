// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"context"
	"log"
	"os"
	"os/signal"
)

// WithSignalCancel cancels the returned context when one of sigs is
// received. A repeated signal calls onRepeat (if non-nil), which lets
// the caller abandon a graceful shutdown that is taking too long.
func WithSignalCancel(ctx context.Context, l *log.Logger, onRepeat func(os.Signal), sigs ...os.Signal) (
	context.Context, context.CancelFunc) {
	ctx, cancelFunc := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, sigs...)
	stopCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			l.Printf("Cancellation signal (%s) received", sig)
			cancelFunc()
		case <-ctx.Done():
		case <-stopCh:
			return
		}

		select {
		case sig := <-sigChan:
			l.Printf("Repeated signal (%s) received", sig)
			if onRepeat != nil {
				onRepeat(sig)
			}
		case <-stopCh:
		}
	}()

	f := func() {
		signal.Stop(sigChan)
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
		cancelFunc()
	}

	return ctx, f
}
