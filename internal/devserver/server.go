package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mvdown/internal/logging"
)

// Options configures a Server.
type Options struct {
	// Dir stores the files produced by simulated jobs.
	Dir string
	// Step is the delay between simulated progress frames.
	Step time.Duration
	// AllowOrigins lists CORS origins; empty allows all.
	AllowOrigins []string
	Logger       *slog.Logger
}

// Server emulates the backend API.
type Server struct {
	opts     Options
	logger   *slog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

// New constructs a Server and creates its storage directory.
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("devserver requires a storage directory")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "devserver"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(s.corsMiddleware())

	router.GET("/health", s.health)
	router.GET("/downloads/:name", s.serveFile)
	router.GET("/ws/:id", s.websocketProgress)

	api := router.Group("/api")
	{
		api.POST("/formats", s.formats)
		api.POST("/download", s.download)
		api.GET("/progress/:id", s.sseProgress)
		api.GET("/files", s.listFiles)
		api.DELETE("/files", s.deleteAllFiles)
		api.DELETE("/files/:name", s.deleteFile)
	}
	return router
}

// Handler returns the HTTP handler for use with httptest or a custom server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("dev server listening", logging.String("addr", listener.Addr().String()), logging.String("dir", s.opts.Dir))

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Open progress streams do not end on their own.
		_ = srv.Close()
	}
	return nil
}

// Close stops simulated jobs and ends their streams.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	for _, j := range s.jobs {
		j.finish()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) lookup(id string) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Server) activeJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, j := range s.jobs {
		if j.active() {
			count++
		}
	}
	return count
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		started := time.Now()
		c.Next()
		s.logger.Debug("request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldCorrelationID, requestID),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(s.opts.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.AllowOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	return cors.New(config)
}
