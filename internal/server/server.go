// Package server exposes single-image background removal over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/processing"
	"github.com/DennySORA/Remove-Background/pkg/resolver"
	"github.com/DennySORA/Remove-Background/pkg/runner"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// MaxUploadBytes caps the multipart body
const MaxUploadBytes = 64 << 20

// Catalog is the part of the registry the server needs
type Catalog interface {
	List() []types.MethodDescriptor
	Descriptor(id types.MethodID) (types.MethodDescriptor, error)
	Get(id types.MethodID) (backend.Adapter, error)
}

// Server serves the HTTP API
type Server struct {
	catalog   Catalog
	processor *processing.Processor
	logger    *slog.Logger
	timeout   time.Duration
	engine    *gin.Engine

	mu     sync.Mutex
	loaded map[types.MethodID]*loadState
}

type loadState struct {
	once sync.Once
	err  error
}

// New builds the server and its routes
func New(catalog Catalog, logger *slog.Logger, timeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		catalog:   catalog,
		processor: processing.NewProcessor(),
		logger:    logger,
		timeout:   timeout,
		loaded:    make(map[types.MethodID]*loadState),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())
	r.GET("/healthz", s.health)
	r.GET("/v1/methods", s.methods)
	r.POST("/v1/remove", s.remove)
	s.engine = r
	return s
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) methods(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.List())
}

func (s *Server) remove(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)

	method := types.MethodID(c.DefaultPostForm("method", string(backend.GeneralID)))
	var strength *float64
	if raw := strings.TrimSpace(c.PostForm("strength")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.fail(c, fmt.Errorf("%w: %q is not a number", types.ErrInvalidStrength, raw))
			return
		}
		strength = &v
	}
	mode := types.Mode(c.PostForm("mode"))

	desc, level, _, err := resolver.ResolveMethod(s.catalog, method, strength, mode)
	if err != nil {
		s.fail(c, err)
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart field \"image\""})
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", types.ErrDecode, err))
		return
	}
	img, err := s.processor.LoadImageFromReader(f)
	_ = f.Close()
	if err != nil {
		s.fail(c, err)
		return
	}

	adapter, err := s.adapter(c.Request.Context(), desc.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := runner.Remove(c.Request.Context(), adapter, img, level, s.timeout)
	if err != nil {
		s.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.processor.EncodePNG(&buf, out); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// adapter returns the adapter for id, loading it on first use. A failed load
// is remembered and reported on every later request.
func (s *Server) adapter(ctx context.Context, id types.MethodID) (backend.Adapter, error) {
	a, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	st, ok := s.loaded[id]
	if !ok {
		st = &loadState{}
		s.loaded[id] = st
	}
	s.mu.Unlock()

	st.once.Do(func() {
		if err := a.Load(context.WithoutCancel(ctx)); err != nil {
			if !errors.Is(err, types.ErrBackendUnavailable) {
				err = fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
			}
			st.err = err
			s.logger.Error("adapter failed to load", "method", id, "error", err)
		}
	})
	if st.err != nil {
		return nil, st.err
	}
	return backend.Exclusive(a), nil
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", c.GetString("request_id"), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": types.Reason(err)})
}

// StatusFor maps the error taxonomy onto HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrUnknownMethod):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidStrength), errors.Is(err, types.ErrIncompatibleMode):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
