package service

import (
	"context"

	"taskboard/internal/models"
)

// Column is one stage of a board with the tasks sitting in it.
type Column struct {
	Stage models.Stage  `json:"stage"`
	Tasks []models.Task `json:"tasks"`
}

// Board is the column projection of a scope's tasks.
type Board struct {
	Methodology string   `json:"methodology"`
	Columns     []Column `json:"columns"`
}

// Board groups the tasks of the caller's workspace, or of a team, by stage in
// board order. Every stage gets a column even when empty.
func (s *Service) Board(ctx context.Context, p models.Principal, teamID *int64) (Board, error) {
	set, err := s.Workflow(ctx, p, teamID)
	if err != nil {
		return Board{}, err
	}
	tasks, err := s.store.ListTasks(ctx, p.UserID, models.TaskFilter{TeamID: teamID})
	if err != nil {
		return Board{}, err
	}

	stages := set.All()
	board := Board{Methodology: set.Methodology.ID, Columns: make([]Column, len(stages))}
	index := make(map[string]int, len(stages))
	for i, st := range stages {
		board.Columns[i] = Column{Stage: st, Tasks: []models.Task{}}
		index[st.ID] = i
	}
	for _, t := range tasks {
		i, ok := index[t.Status]
		if !ok {
			s.logger.Warn("task status outside stage set", "task_id", t.ID, "status", t.Status)
			continue
		}
		board.Columns[i].Tasks = append(board.Columns[i].Tasks, t)
	}
	return board, nil
}
