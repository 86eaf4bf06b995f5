package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
)

func TestNewServer_AppliesConfig(t *testing.T) {
	mux := http.NewServeMux()
	s := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080, ReadTimeout: 3 * time.Second}, mux, nil)

	assert.Equal(t, "127.0.0.1:8080", s.srv.Addr)
	assert.Equal(t, 3*time.Second, s.srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, s.srv.WriteTimeout)
	assert.Equal(t, defaultShutdownTimeout, s.shutdownTimeout)
	assert.Equal(t, http.Handler(mux), s.Handler())
}

func TestServer_ServeAndStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	s := NewServer(config.ServerConfig{ShutdownTimeout: time.Second}, mux, logging.NewNopLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServer_StopWithoutStart(t *testing.T) {
	s := NewServer(config.ServerConfig{Port: 0}, http.NewServeMux(), nil)
	assert.NoError(t, s.Stop(context.Background()))
}
