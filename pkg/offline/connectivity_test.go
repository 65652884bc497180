package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSwitch_NotifiesOnChangeOnly(t *testing.T) {
	sw := NewSwitch(false)
	var seen []bool
	unsubscribe := sw.Subscribe(func(online bool) { seen = append(seen, online) })

	sw.Set(false)
	sw.Set(true)
	sw.Set(true)
	sw.Set(false)
	unsubscribe()
	sw.Set(true)

	assert.Equal(t, []bool{true, false}, seen)
	assert.True(t, sw.Online())
}

func TestHealthMonitor_TracksHealthEndpoint(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := NewHealthMonitor(srv.URL+"/health", time.Minute, zerolog.Nop())
	assert.False(t, p.Online(), "monitor starts offline")

	var restored atomic.Int32
	p.Subscribe(func(online bool) {
		if online {
			restored.Add(1)
		}
	})

	ctx := context.Background()
	assert.True(t, p.Check(ctx))
	assert.Equal(t, int32(1), restored.Load())

	status.Store(http.StatusServiceUnavailable)
	assert.False(t, p.Check(ctx))

	status.Store(http.StatusOK)
	assert.True(t, p.Check(ctx))
	assert.Equal(t, int32(2), restored.Load())
}

func TestHealthMonitor_UnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewHealthMonitor(url, time.Minute, zerolog.Nop())
	assert.False(t, p.Check(context.Background()))
}
