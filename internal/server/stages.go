package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
	"taskboard/internal/service"
)

type stageRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
	IsInitial   *bool   `json:"is_initial"`
	IsFinal     *bool   `json:"is_final"`
}

type reorderRequest struct {
	StageIDs []string `json:"stage_ids" binding:"required"`
}

func (s *Server) handleListStages(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stages, err := s.svc.ListStages(c.Request.Context(), principal(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if stages == nil {
		stages = []models.Stage{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"stages": stages})
}

// handleCreateStage appends a custom stage to a team's board.
func (s *Server) handleCreateStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	stage, err := s.svc.CreateStage(c.Request.Context(), principal(c), id, service.StageInput{
		Name:        getString(req.Name),
		Description: getString(req.Description),
		Icon:        getString(req.Icon),
		Color:       getString(req.Color),
		IsInitial:   req.IsInitial != nil && *req.IsInitial,
		IsFinal:     req.IsFinal != nil && *req.IsFinal,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"stage": stage})
}

func (s *Server) handleUpdateStage(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	stage, err := s.svc.UpdateStage(c.Request.Context(), principal(c), c.Param("stageId"), service.StagePatch{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		IsInitial:   req.IsInitial,
		IsFinal:     req.IsFinal,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stage": stage})
}

// handleReorderStages rewrites the board order of a team's custom stages.
func (s *Server) handleReorderStages(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	stages, err := s.svc.ReorderStages(c.Request.Context(), principal(c), id, req.StageIDs)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stages": stages})
}

// handleDeleteStage removes a stage; 409 with taskCount while tasks use it.
func (s *Server) handleDeleteStage(c *gin.Context) {
	if err := s.svc.DeleteStage(c.Request.Context(), principal(c), c.Param("stageId")); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}
