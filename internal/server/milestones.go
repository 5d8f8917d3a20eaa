package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
	"taskboard/internal/service"
)

type milestoneRequest struct {
	TeamID       *int64     `json:"team_id"`
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	HandoffTo    *int64     `json:"handoff_to"`
	HandoffStage *string    `json:"handoff_stage"`
	ClearHandoff bool       `json:"clear_handoff"`
}

func (s *Server) handleListMilestones(c *gin.Context) {
	teamID, ok := parseOptionalID(c, "team_id")
	if !ok {
		return
	}
	milestones, err := s.svc.ListMilestones(c.Request.Context(), principal(c), teamID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"milestones": milestones})
}

func (s *Server) handleGetMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := s.svc.GetMilestone(c.Request.Context(), principal(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if detail.Tasks == nil {
		detail.Tasks = []models.Task{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"milestone": detail})
}

func (s *Server) handleCreateMilestone(c *gin.Context) {
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	m, err := s.svc.CreateMilestone(c.Request.Context(), principal(c), service.MilestoneInput{
		TeamID:       req.TeamID,
		Name:         getString(req.Name),
		Description:  getString(req.Description),
		DueDate:      req.DueDate,
		HandoffTo:    req.HandoffTo,
		HandoffStage: getString(req.HandoffStage),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"milestone": m})
}

func (s *Server) handleUpdateMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	m, err := s.svc.UpdateMilestone(c.Request.Context(), principal(c), id, service.MilestonePatch{
		Name:         req.Name,
		Description:  req.Description,
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
		HandoffTo:    req.HandoffTo,
		HandoffStage: req.HandoffStage,
		ClearHandoff: req.ClearHandoff,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"milestone": m})
}

func (s *Server) handleDeleteMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.DeleteMilestone(c.Request.Context(), principal(c), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleCompleteMilestone completes a milestone and runs its handoff.
func (s *Server) handleCompleteMilestone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := s.svc.CompleteMilestone(c.Request.Context(), principal(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

func (s *Server) handleAddMilestoneTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return
	}
	task, err := s.svc.AddTaskToMilestone(c.Request.Context(), principal(c), id, taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

func (s *Server) handleRemoveMilestoneTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return
	}
	task, err := s.svc.RemoveTaskFromMilestone(c.Request.Context(), principal(c), id, taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}
