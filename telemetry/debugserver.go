package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StepSnapshot is the live step-state view a running agent loop exposes
// to the debug server; it's a read-only projection, never a control
// surface (the debug server never accepts commands back into the loop).
type StepSnapshot struct {
	RunID     string
	State     string // "idle", "stepping", "waiting_llm", "acting", "observing", "done", "failed", "paused"
	StepIndex int
	Task      string
	URL       string
}

// StateProvider is implemented by the running agent loop so the debug
// server can render its current state without importing agentloop
// (which itself depends on telemetry for Sink, so the dependency only
// runs one way).
type StateProvider interface {
	CurrentStep() StepSnapshot
}

// DebugServer is an opt-in, loopback-only introspection HTTP server
// (gin-backed, grounded on the teacher's api/router.go construction)
// exposing the last captured agent_events and the live step state as
// JSON. It is explicitly NOT a task-submission API — spec §1 keeps any
// such surface out of scope; this only renders what's already captured.
type DebugServer struct {
	engine *gin.Engine
	srv    *http.Server
}

// NewDebugServer builds a DebugServer over sink and an optional state
// provider (nil if no run is currently attached).
func NewDebugServer(sink *MemorySink, provider StateProvider) *DebugServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/debug/events", func(c *gin.Context) {
		c.JSON(http.StatusOK, sink.Events())
	})
	r.GET("/debug/state", func(c *gin.Context) {
		if provider == nil {
			c.JSON(http.StatusOK, StepSnapshot{State: "idle"})
			return
		}
		c.JSON(http.StatusOK, provider.CurrentStep())
	})
	r.GET("/debug/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &DebugServer{engine: r}
}

// Start begins serving on addr (loopback-only by convention, e.g.
// "127.0.0.1:9222"); it returns once the listener is up or setup fails.
func (d *DebugServer) Start(addr string) error {
	d.srv = &http.Server{Addr: addr, Handler: d.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- d.srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the debug server down, if it was started.
func (d *DebugServer) Stop(ctx context.Context) error {
	if d.srv == nil {
		return nil
	}
	return d.srv.Shutdown(ctx)
}
