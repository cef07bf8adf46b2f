// Package control exposes the orchestrator on a loopback HTTP listener so
// window-manager keybindings and status bars can drive it.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"murmur/log"
	"murmur/session"
)

// Controller is the part of the orchestrator the listener needs.
type Controller interface {
	Toggle(ctx context.Context) (session.Ack, error)
	Status() session.Status
}

type ToggleResponse struct {
	Action string `json:"action"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type StatusResponse struct {
	State     string    `json:"state"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Since     time.Time `json:"since"`
	Session   string    `json:"session,omitempty"`
	Provider  string    `json:"provider"`
	LastError string    `json:"last_error,omitempty"`
	Cycles    int       `json:"cycles"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const toggleTimeout = 5 * time.Second

type Server struct {
	ctl     Controller
	version string
	engine  *gin.Engine
	srv     *http.Server
	ln      net.Listener
}

func New(addr string, ctl Controller, version string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{ctl: ctl, version: version, engine: gin.New()}
	s.engine.Use(recovery(), requestLogger())
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.index)
	s.engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.POST("/toggle", s.toggle)
	s.engine.GET("/status", s.status)
}

// Handler is the router without a listener, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the address and serves in the background. It returns once the
// port is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("control listener on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("control_serve: %v", err)
		}
	}()
	log.Infof("control_listening addr=%s", ln.Addr())
	return nil
}

// Addr is the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("control shutdown: %w", err)
	}
	return nil
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "murmur",
		"version":   s.version,
		"endpoints": []string{"GET /status", "POST /toggle", "GET /health"},
	})
}

func (s *Server) toggle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), toggleTimeout)
	defer cancel()

	ack, err := s.ctl.Toggle(ctx)
	switch {
	case errors.Is(err, session.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
		return
	}

	code := http.StatusOK
	if ack.Action == session.ActionBusy {
		code = http.StatusConflict
	}
	c.JSON(code, ToggleResponse{Action: string(ack.Action), State: string(ack.State), Reason: ack.Reason})
}

func (s *Server) status(c *gin.Context) {
	st := s.ctl.Status()
	c.JSON(http.StatusOK, StatusResponse{
		State:     string(st.State),
		ElapsedMs: st.Elapsed.Milliseconds(),
		Since:     st.Since,
		Session:   st.Session,
		Provider:  st.Provider,
		LastError: st.LastError,
		Cycles:    st.Cycles,
	})
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		log.Errorf("control_panic path=%s: %v", c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("control_request method=%s path=%s status=%d latency=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
