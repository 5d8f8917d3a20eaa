package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskboard/internal/logging"
	"taskboard/internal/models"
	"taskboard/internal/service"
)

// Options configures the HTTP server.
type Options struct {
	StaticDir string
	JWTSecret string
	AccessLog *logrus.Logger
}

// Server provides the REST API of the task board.
type Server struct {
	engine    *gin.Engine
	svc       *service.Service
	logger    *slog.Logger
	staticDir string
	secret    []byte
}

// New constructs the HTTP server with routes and middleware configured.
func New(svc *service.Service, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.AccessLog != nil {
		router.Use(accessLog(opts.AccessLog))
	}

	srv := &Server{
		engine:    router,
		svc:       svc,
		logger:    logger,
		staticDir: opts.StaticDir,
		secret:    []byte(opts.JWTSecret),
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.GET("/healthz", s.handleHealth)

	authed := api.Group("", s.authenticate())
	{
		authed.GET("/methodologies", s.handleListMethodologies)
		authed.GET("/methodologies/:id", s.handleGetMethodology)
		authed.GET("/methodology", s.handleGetWorkflow)
		authed.PUT("/methodology", s.handleSwitchPersonalMethodology)
		authed.GET("/board", s.handlePersonalBoard)
		authed.GET("/activity", s.handleActivity)

		tasks := authed.Group("/tasks")
		{
			tasks.GET("", s.handleListTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.GET(":id", s.handleGetTask)
			tasks.PUT(":id", s.handleUpdateTask)
			tasks.DELETE(":id", s.handleDeleteTask)
		}

		teams := authed.Group("/teams")
		{
			teams.GET("", s.handleListTeams)
			teams.POST("", s.handleCreateTeam)
			teams.GET(":id", s.handleGetTeam)
			teams.PUT(":id", s.handleUpdateTeam)
			teams.DELETE(":id", s.handleDeleteTeam)
			teams.PUT(":id/methodology", s.handleSwitchTeamMethodology)
			teams.GET(":id/board", s.handleTeamBoard)
			teams.GET(":id/members", s.handleListMembers)
			teams.POST(":id/members", s.handleAddMember)
			teams.PUT(":id/members/:userId", s.handleChangeMemberRole)
			teams.DELETE(":id/members/:userId", s.handleRemoveMember)
			teams.POST(":id/leave", s.handleLeaveTeam)
			teams.GET(":id/stages", s.handleListStages)
			teams.POST(":id/stages", s.handleCreateStage)
			teams.POST(":id/stages/reorder", s.handleReorderStages)
		}

		authed.PUT("/stages/:stageId", s.handleUpdateStage)
		authed.DELETE("/stages/:stageId", s.handleDeleteStage)

		milestones := authed.Group("/milestones")
		{
			milestones.GET("", s.handleListMilestones)
			milestones.POST("", s.handleCreateMilestone)
			milestones.GET(":id", s.handleGetMilestone)
			milestones.PUT(":id", s.handleUpdateMilestone)
			milestones.DELETE(":id", s.handleDeleteMilestone)
			milestones.POST(":id/complete", s.handleCompleteMilestone)
			milestones.POST(":id/tasks/:taskId", s.handleAddMilestoneTask)
			milestones.DELETE(":id/tasks/:taskId", s.handleRemoveMilestoneTask)
		}
	}

	s.mountStatic()
}

// handleHealth reports readiness including the database connection.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// parseOptionalID reads an optional numeric query parameter.
func parseOptionalID(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &id, true
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidStatus), errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidOperation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail maps a service error and adds the detail callers need to react:
// the blockers of a stage or the progress of a failed handoff. A failed
// handoff is always 409 whatever its cause.
func (s *Server) fail(c *gin.Context, err error) {
	var handoff *models.HandoffError
	if errors.As(err, &handoff) {
		s.logger.Warn("handoff failed", "milestone_id", handoff.MilestoneID, "succeeded", handoff.Succeeded, "total", handoff.Total, "error", err.Error())
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "succeeded": handoff.Succeeded, "total": handoff.Total})
		return
	}

	status := statusFor(err)
	var inUse *models.StageInUseError
	if errors.As(err, &inUse) {
		c.JSON(status, gin.H{"error": err.Error(), "taskCount": inUse.Count, "milestoneCount": inUse.Milestones})
		return
	}
	var invalid *models.StatusError
	if errors.As(err, &invalid) {
		c.JSON(status, gin.H{"error": err.Error(), "status": invalid.Status})
		return
	}
	s.respondError(c, status, err)
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected", slog.String("path", c.FullPath()), slog.Int("status", status), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess writes payload, or only the status when payload is nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

// accessLog writes one logrus line per request and tags the response with
// the request's event id.
func accessLog(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		eventID := c.GetHeader("X-Request-ID")
		if eventID == "" {
			eventID = uuid.NewString()
		}
		c.Header("X-Request-ID", eventID)

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			logging.EventIDField: eventID,
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             status,
			"latency":            time.Since(start).String(),
			"client":             c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
