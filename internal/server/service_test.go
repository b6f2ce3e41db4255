package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

type fakeHTTPServer struct {
	listenErr error
	started   chan struct{}
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (s *fakeHTTPServer) ListenAndServe() error {
	s.started <- struct{}{}
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeHTTPServer) Shutdown(context.Context) error {
	s.shutdowns.Add(1)
	close(s.stop)
	return nil
}

var _ suture.Service = (*HTTPService)(nil)

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv, 0, zerolog.Nop())
	assert.Equal(t, DefaultShutdownTimeout, svc.shutdownTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestHTTPServiceReportsListenFailure(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPService(srv, time.Second, zerolog.Nop())

	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, int32(0), srv.shutdowns.Load())
	assert.Equal(t, "http-server", svc.String())
}
