package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"weather-chat/internal/domain"
	"weather-chat/internal/observability"
	"weather-chat/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	msgUnexpected     = "An unexpected error occurred. Please try again later."
)

// ChatStreamer runs one chat turn and reports its events through emit.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []domain.ChatMessage, settings domain.ChatSettings, emit usecase.Emitter) error
}

type ServerConfig struct {
	Address      string
	AllowOrigins []string
}

// Server is the HTTP transport for the chat relay.
type Server struct {
	cfg    ServerConfig
	chat   ChatStreamer
	logger *slog.Logger
	engine *gin.Engine
}

func NewServer(chat ChatStreamer, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if chat == nil {
		return nil, errors.New("handler: chat streamer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	s := &Server{cfg: cfg, chat: chat, logger: logger, engine: engine}

	engine.Use(s.correlationID(), s.accessLog(), gin.CustomRecovery(s.recovered))
	if len(cfg.AllowOrigins) > 0 {
		corsCfg := corsConfig(cfg.AllowOrigins)
		if err := corsCfg.Validate(); err != nil {
			return nil, fmt.Errorf("handler: cors config: %w", err)
		}
		engine.Use(cors.New(corsCfg))
	}
	s.registerRoutes()
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		MaxAge:           10 * time.Minute,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)
	api := s.engine.Group("/api")
	api.POST("/chat/stream", s.streamChat)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("handler: serve: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) streamChat(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.logger.WarnContext(ctx, "read request body failed", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Could not read request body"})
		return
	}
	req, reqErr := decodeChatRequest(body)
	if reqErr != nil {
		s.logger.WarnContext(ctx, "chat request rejected", "status", reqErr.Status, "detail", reqErr.Detail)
		c.JSON(reqErr.Status, gin.H{"detail": reqErr.Detail})
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	w := newSSEWriter(c.Writer, c.Writer.Flush, s.logger)
	s.logOutcome(ctx, s.chat.StreamChat(ctx, req.Messages, *req.Settings, w.Emit))
}

func (s *Server) logOutcome(ctx context.Context, err error) {
	var chatErr *usecase.Error
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "chat stream completed")
	case errors.As(err, &chatErr) && chatErr.Code == usecase.ErrorClientGone:
		s.logger.InfoContext(ctx, "client disconnected during chat stream", "err", err)
	default:
		s.logger.WarnContext(ctx, "chat stream ended with error", "err", err)
	}
}

// correlationID echoes X-Correlation-Id, or generates one, and attaches it to
// the request context for logging.
func (s *Server) correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(correlationHeader, id)
		c.Request = c.Request.WithContext(observability.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) recovered(c *gin.Context, recovered any) {
	s.logger.ErrorContext(c.Request.Context(), "unhandled panic", "panic", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": msgUnexpected})
}
