package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
	"taskboard/internal/service"
)

type taskRequest struct {
	TeamID        *int64  `json:"team_id"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Priority      *string `json:"priority"`
	Status        *string `json:"status"`
	Assignee      *int64  `json:"assignee"`
	ClearAssignee bool    `json:"clear_assignee"`
}

// handleListTasks lists personal tasks, or a team's with ?team_id=.
func (s *Server) handleListTasks(c *gin.Context) {
	teamID, ok := parseOptionalID(c, "team_id")
	if !ok {
		return
	}
	milestoneID, ok := parseOptionalID(c, "milestone_id")
	if !ok {
		return
	}

	tasks, err := s.svc.ListTasks(c.Request.Context(), principal(c), models.TaskFilter{
		TeamID:      teamID,
		Status:      c.Query("status"),
		Priority:    c.Query("priority"),
		MilestoneID: milestoneID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask inserts a task; status defaults to the scope's initial stage.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.svc.CreateTask(c.Request.Context(), principal(c), service.TaskInput{
		TeamID:      req.TeamID,
		Title:       getString(req.Title),
		Description: getString(req.Description),
		Priority:    getString(req.Priority),
		Status:      getString(req.Status),
		Assignee:    req.Assignee,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, err := s.svc.GetTask(c.Request.Context(), principal(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleUpdateTask applies a partial update and returns the stored task.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.svc.UpdateTask(c.Request.Context(), principal(c), id, service.TaskPatch{
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		Status:        req.Status,
		Assignee:      req.Assignee,
		ClearAssignee: req.ClearAssignee,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.DeleteTask(c.Request.Context(), principal(c), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleActivity returns the caller's recent activity.
func (s *Server) handleActivity(c *gin.Context) {
	entries, err := s.svc.ActivityFeed(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"activity": entries})
}

func getString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
