package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type methodologyRequest struct {
	Methodology string `json:"methodology" binding:"required"`
}

func (s *Server) handleListMethodologies(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"methodologies": s.svc.Methodologies()})
}

func (s *Server) handleGetMethodology(c *gin.Context) {
	m, err := s.svc.Methodology(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"methodology": m})
}

// handleGetWorkflow returns the stage set of the caller's personal workspace,
// or of a team with ?team_id=.
func (s *Server) handleGetWorkflow(c *gin.Context) {
	teamID, ok := parseOptionalID(c, "team_id")
	if !ok {
		return
	}
	set, err := s.svc.Workflow(c.Request.Context(), principal(c), teamID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"methodology": set.Methodology,
		"stages":      set.All(),
		"initial":     set.Initial().ID,
	})
}

func (s *Server) handleSwitchPersonalMethodology(c *gin.Context) {
	s.switchMethodology(c, nil)
}

func (s *Server) handleSwitchTeamMethodology(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.switchMethodology(c, &id)
}

// switchMethodology changes a scope's methodology and migrates its tasks.
func (s *Server) switchMethodology(c *gin.Context, teamID *int64) {
	var req methodologyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	result, err := s.svc.SwitchMethodology(c.Request.Context(), principal(c), teamID, req.Methodology)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}
