package service

import (
	"context"
	"fmt"

	"taskboard/internal/methodology"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// StageSet is the effective workflow of a scope: the active methodology's
// stages followed by the team's custom stages.
type StageSet struct {
	Methodology models.Methodology `json:"methodology"`
	Custom      []models.Stage     `json:"custom_stages"`
	scope       string
}

// Resolve finds a stage by id.
func (ss StageSet) Resolve(id string) (models.Stage, bool) {
	if s, ok := methodology.FindStage(ss.Methodology.Stages, id); ok {
		return s, true
	}
	return methodology.FindStage(ss.Custom, id)
}

// Initial is the default stage for new tasks. A custom stage flagged initial
// overrides the methodology's.
func (ss StageSet) Initial() models.Stage {
	for _, s := range ss.Custom {
		if s.IsInitial {
			return s
		}
	}
	return methodology.Initial(ss.Methodology)
}

// All lists every stage in board order.
func (ss StageSet) All() []models.Stage {
	out := make([]models.Stage, 0, len(ss.Methodology.Stages)+len(ss.Custom))
	out = append(out, ss.Methodology.Stages...)
	return append(out, ss.Custom...)
}

// validate resolves a status or fails with a StatusError naming it.
func (ss StageSet) validate(status string) (models.Stage, error) {
	s, ok := ss.Resolve(status)
	if !ok {
		return models.Stage{}, &models.StatusError{Status: status, Scope: ss.scope}
	}
	return s, nil
}

// loadStageSet resolves the stage set of a personal (teamID nil) or team scope.
func (s *Service) loadStageSet(ctx context.Context, q *sqlite.Queries, ownerID int64, teamID *int64) (StageSet, error) {
	if teamID == nil {
		user, err := q.GetUser(ctx, ownerID)
		if err != nil {
			return StageSet{}, err
		}
		m := s.activeMethodology(user.Methodology)
		return StageSet{Methodology: m, scope: fmt.Sprintf("methodology %s", m.ID)}, nil
	}

	team, err := q.GetTeam(ctx, *teamID)
	if err != nil {
		return StageSet{}, err
	}
	m := s.activeMethodology(team.Methodology)
	custom, err := q.ListStages(ctx, *teamID)
	if err != nil {
		return StageSet{}, err
	}
	return StageSet{Methodology: m, Custom: custom, scope: fmt.Sprintf("team %d (methodology %s)", team.ID, m.ID)}, nil
}

// activeMethodology looks up a stored methodology id. A catalog that no
// longer carries it falls back to the default rather than stranding tasks.
func (s *Service) activeMethodology(id string) models.Methodology {
	m, err := s.catalog.Get(id)
	if err == nil {
		return m
	}
	s.logger.Warn("stored methodology missing from catalog", "methodology", id)
	return s.catalog.Default()
}
