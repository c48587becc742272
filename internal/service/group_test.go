package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"difyrelay/internal/domain"
)

func blockUntilDone(name string, stopped *atomic.Int32) Func {
	return Func{ServiceName: name, Fn: func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Add(1)
		return nil
	}}
}

func TestGroup_FailureCancelsOthers(t *testing.T) {
	var stopped atomic.Int32
	boom := errors.New("boom")

	g := Group{
		blockUntilDone("a", &stopped),
		blockUntilDone("b", &stopped),
		Func{ServiceName: "failing", Fn: func(context.Context) error { return boom }},
	}

	err := g.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.EqualValues(t, 2, stopped.Load())
}

func TestGroup_ContextCancel(t *testing.T) {
	var stopped atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Group{blockUntilDone("a", &stopped)}.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop")
	}
	assert.EqualValues(t, 1, stopped.Load())
}

type stubTransport struct {
	started, stopped atomic.Bool
	startErr         error
}

func (s *stubTransport) Name() string { return "stub" }
func (s *stubTransport) Start(context.Context, domain.MessageBus) error {
	s.started.Store(true)
	return s.startErr
}
func (s *stubTransport) Stop() error {
	s.stopped.Store(true)
	return nil
}
func (s *stubTransport) DownloadMedia(context.Context, domain.InboundMessage) (*domain.MediaPayload, error) {
	return nil, nil
}
func (s *stubTransport) Send(context.Context, domain.OutboundMessage) error { return nil }

func TestTransport_StartAndStop(t *testing.T) {
	st := &stubTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, Transport{T: st}.Run(ctx))
	assert.True(t, st.started.Load())
	assert.True(t, st.stopped.Load())
}

func TestTransport_StartError(t *testing.T) {
	st := &stubTransport{startErr: errors.New("no token")}
	err := Transport{T: st}.Run(context.Background())
	assert.EqualError(t, err, "no token")
	assert.False(t, st.stopped.Load())
}

func TestHTTPServer_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- HTTPServer{Server: srv}.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
