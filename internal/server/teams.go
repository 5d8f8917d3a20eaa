package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
	"taskboard/internal/service"
)

type teamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Methodology string `json:"methodology"`
}

type memberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleListTeams(c *gin.Context) {
	teams, err := s.svc.ListTeams(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if teams == nil {
		teams = []models.Team{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"teams": teams})
}

// handleCreateTeam creates a team owned by the caller.
func (s *Server) handleCreateTeam(c *gin.Context) {
	var req teamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	team, err := s.svc.CreateTeam(c.Request.Context(), principal(c), service.TeamInput{
		Name:        req.Name,
		Description: req.Description,
		Methodology: req.Methodology,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"team": team})
}

func (s *Server) handleGetTeam(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	team, err := s.svc.GetTeam(c.Request.Context(), principal(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"team": team})
}

func (s *Server) handleUpdateTeam(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req teamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	team, err := s.svc.UpdateTeam(c.Request.Context(), principal(c), id, req.Name, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"team": team})
}

func (s *Server) handleDeleteTeam(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.DeleteTeam(c.Request.Context(), principal(c), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

func (s *Server) handleListMembers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	members, err := s.svc.ListMembers(c.Request.Context(), principal(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"members": members})
}

func (s *Server) handleAddMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	member, err := s.svc.AddMember(c.Request.Context(), principal(c), id, req.UserID, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"member": member})
}

func (s *Server) handleChangeMemberRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	member, err := s.svc.ChangeMemberRole(c.Request.Context(), principal(c), id, userID, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"member": member})
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	if err := s.svc.RemoveMember(c.Request.Context(), principal(c), id, userID); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

func (s *Server) handleLeaveTeam(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.LeaveTeam(c.Request.Context(), principal(c), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleTeamBoard returns the team's stages with their tasks.
func (s *Server) handleTeamBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	board, err := s.svc.Board(c.Request.Context(), principal(c), &id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": board})
}

func (s *Server) handlePersonalBoard(c *gin.Context) {
	board, err := s.svc.Board(c.Request.Context(), principal(c), nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": board})
}
