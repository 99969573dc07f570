package web

import (
	"context"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/client"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// backgroundTimeout bounds a generation started by the trigger endpoint.
const backgroundTimeout = 10 * time.Minute

type Server struct {
	jobs   *client.JobManager
	users  store.UserStore
	cfg    config.ServerConfig
	secret string
	logger *zap.Logger
	now    func() time.Time

	// background tracks generations started by the trigger endpoint.
	background sync.WaitGroup
}

func NewServer(jobs *client.JobManager, users store.UserStore, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		jobs:   jobs,
		users:  users,
		cfg:    cfg,
		secret: cfg.InternalSecret,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/logout", s.handleLogout)

	operator := api.Group("", s.requireOperator())
	operator.GET("/queue/status", s.handleQueueStatus)
	operator.GET("/jobs", s.handleJobs)
	operator.POST("/jobs/reprocess", s.handleReprocess)
	operator.POST("/jobs/:id/cancel", s.handleCancel)

	generations := api.Group("/generations", requireRequestor())
	generations.POST("", s.handleCreateGeneration)
	generations.GET("", s.handleListGenerations)
	generations.GET("/:id", s.handleGetGeneration)

	internal := r.Group("/internal", requireSecret(s.secret))
	internal.POST("/generations/:id/process", s.handleProcessGeneration)
	internal.POST("/queue/drain", s.handleDrain)

	return r
}

// Serve listens until ctx is done, then shuts down and waits for background generations.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printBanner(addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown failed", zap.Error(err))
	}
	s.background.Wait()
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := s.users.Find(c.Request.Context(), req.Username, req.Password)
	if err != nil && !errors.Is(err, custom_errors.ErrNotFound) {
		s.writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, expiresAt, err := generateAuthToken(user.ID, user.Username, s.cfg.JWTSecret, s.cfg.TokenTTL, s.now())
	if err != nil {
		s.writeError(c, fmt.Errorf("failed to sign token: %w", err))
		return
	}
	c.SetCookie(authCookie, token, int(s.cfg.TokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(authCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleQueueStatus(c *gin.Context) {
	status, err := s.jobs.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleJobs(c *gin.Context) {
	var statuses []state.JobStatus
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			status := state.JobStatus(strings.TrimSpace(part))
			if !status.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", part)})
				return
			}
			statuses = append(statuses, status)
		}
	}

	jobs, err := s.jobs.Jobs(c.Request.Context(), getPageNumber(c), getPageSize(c), statuses)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

type reprocessRequest struct {
	Kind       types.JobKind `json:"kind" binding:"required"`
	ResourceID string        `json:"resource_id" binding:"required"`
}

func (s *Server) handleReprocess(c *gin.Context) {
	var req reprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind and resource_id are required"})
		return
	}
	outcome, err := s.jobs.Reprocess(c.Request.Context(), req.Kind, req.ResourceID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleCancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	if err := s.jobs.Cancel(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": state.StatusCancelled})
}

type generationRequest struct {
	Prompt      string         `json:"prompt"`
	ProviderID  string         `json:"provider_id"`
	Parameters  map[string]any `json:"parameters"`
	OutputCount int            `json:"output_count"`
}

func (s *Server) handleCreateGeneration(c *gin.Context) {
	var req generationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	g, err := s.jobs.Dispatcher.Create(c.Request.Context(), types.GenerationRequest{
		RequestorID: c.GetString(requestorKey),
		ProviderID:  req.ProviderID,
		Prompt:      req.Prompt,
		Parameters:  req.Parameters,
		OutputCount: req.OutputCount,
	})
	if err != nil {
		var trigger *custom_errors.TriggerFailureError
		if g != nil && errors.As(err, &trigger) {
			c.JSON(http.StatusBadGateway, gin.H{"error": trigger.Error(), "generation": g})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, g)
}

func (s *Server) handleGetGeneration(c *gin.Context) {
	g, err := s.jobs.Dispatcher.Find(c.Request.Context(), c.GetString(requestorKey), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleListGenerations(c *gin.Context) {
	page, err := s.jobs.Dispatcher.List(c.Request.Context(), c.GetString(requestorKey), getPageNumber(c), getPageSize(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// handleProcessGeneration answers 202 at once and runs the generation in the background,
// so the trigger never waits for the providers.
func (s *Server) handleProcessGeneration(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), backgroundTimeout)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		if err := s.jobs.ProcessGeneration(ctx, id); err != nil {
			s.logger.Warn("triggered generation failed", zap.String("generation_id", id), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": state.StatusProcessing})
}

func (s *Server) handleDrain(c *gin.Context) {
	outcomes, err := s.jobs.Drain(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(outcomes), "outcomes": outcomes})
}

// Wait blocks until every background generation started by this server returned.
func (s *Server) Wait() {
	s.background.Wait()
}
