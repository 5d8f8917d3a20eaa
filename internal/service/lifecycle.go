package service

import (
	"fmt"
	"strings"
	"time"

	"taskboard/internal/models"
)

// applyStatus moves t into stage and keeps completed_at mirroring the stage's
// final flag. An existing completion time survives moves between final stages.
func applyStatus(t *models.Task, stage models.Stage, now time.Time) {
	t.Status = stage.ID
	if !stage.IsFinal {
		t.CompletedAt = nil
		return
	}
	if t.CompletedAt == nil {
		completed := now
		t.CompletedAt = &completed
	}
}

// activityAction classifies an update. Entering a final stage from a
// non-final one is a completion; any other move is a status change.
func activityAction(before, after models.Task) string {
	if before.Status == after.Status {
		return models.ActionUpdated
	}
	if after.CompletedAt != nil && before.CompletedAt == nil {
		return models.ActionCompleted
	}
	return models.ActionStatusChanged
}

// activityDetails describes what changed between two versions of a task.
func activityDetails(before, after models.Task) string {
	var parts []string
	if before.Title != after.Title {
		parts = append(parts, fmt.Sprintf("Renamed from %q", before.Title))
	}
	if before.Status != after.Status {
		parts = append(parts, fmt.Sprintf("Moved from %s to %s", before.Status, after.Status))
	}
	if before.Priority != after.Priority {
		parts = append(parts, fmt.Sprintf("Priority %s to %s", before.Priority, after.Priority))
	}
	if !sameScope(before.Assignee, after.Assignee) {
		if after.Assignee == nil {
			parts = append(parts, "Unassigned")
		} else {
			parts = append(parts, fmt.Sprintf("Assigned to %s", after.AssigneeName))
		}
	}
	if len(parts) == 0 {
		return "Updated details"
	}
	return strings.Join(parts, "; ")
}

func displayName(u models.User) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return "Unknown"
	}
}
