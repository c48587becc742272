package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"difyrelay/internal/domain"
)

type Service interface {
	Name() string
	Run(context.Context) error
}

// Group runs services until ctx is cancelled or one of them fails. A
// failing service cancels the rest; all errors are collected.
type Group []Service

func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g))
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("%s: %w", s.Name(), err)
				cancelFn()
			}
		}(s)
	}

	<-runCtx.Done()
	wg.Wait()

	var err error
	close(errCh)
	for srvErr := range errCh {
		err = multierror.Append(err, srvErr)
	}
	return err
}

// Func adapts a plain function to Service.
type Func struct {
	ServiceName string
	Fn          func(context.Context) error
}

func (f Func) Name() string                  { return f.ServiceName }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Transport runs a domain.Transport on the bus. Start may return at once
// (webhook transports) or block (polling transports); either way Run lasts
// until ctx is cancelled and then calls Stop.
type Transport struct {
	T      domain.Transport
	Bus    domain.MessageBus
	Logger *slog.Logger
}

func (t Transport) Name() string { return t.T.Name() + " transport" }

func (t Transport) Run(ctx context.Context) error {
	if err := t.T.Start(ctx, t.Bus); err != nil {
		return err
	}
	<-ctx.Done()
	if err := t.T.Stop(); err != nil && t.Logger != nil {
		t.Logger.Warn("transport stop failed", "channel", t.T.Name(), "err", err)
	}
	return nil
}

const shutdownTimeout = 10 * time.Second

// HTTPServer serves Server until ctx is cancelled, then shuts it down.
type HTTPServer struct {
	Server *http.Server
	Logger *slog.Logger
}

func (h HTTPServer) Name() string { return "http server" }

func (h HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if h.Logger != nil {
			h.Logger.Info("http server listening", "addr", h.Server.Addr)
		}
		if err := h.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
