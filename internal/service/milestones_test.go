package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/models"
)

func TestCompleteMilestoneHandsOffTasks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teamID := newTestTeam(t, svc)

	m, err := svc.CreateMilestone(ctx, alice, MilestoneInput{
		TeamID:       &teamID,
		Name:         "Beta",
		HandoffTo:    int64p(bob.UserID),
		HandoffStage: "review",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob", m.HandoffToName)

	var ids []int64
	for _, title := range []string{"T1", "T2"} {
		task, err := svc.CreateTask(ctx, alice, TaskInput{TeamID: &teamID, Title: title, Status: "doing"})
		require.NoError(t, err)
		_, err = svc.AddTaskToMilestone(ctx, alice, m.ID, task.ID)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	res, err := svc.CompleteMilestone(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, 2, res.HandedOff)
	assert.Equal(t, 2, res.Total)
	require.NotNil(t, res.Milestone.CompletedAt)

	before := make(map[int64]models.Task)
	for _, id := range ids {
		task, err := svc.GetTask(ctx, alice, id)
		require.NoError(t, err)
		require.NotNil(t, task.Assignee)
		assert.Equal(t, bob.UserID, *task.Assignee)
		assert.Equal(t, "Bob", task.AssigneeName)
		assert.Equal(t, "review", task.Status)
		before[id] = task
	}

	again, err := svc.CompleteMilestone(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCompleted)
	assert.Zero(t, again.HandedOff)
	assert.Equal(t, res.Milestone.CompletedAt, again.Milestone.CompletedAt)

	for _, id := range ids {
		task, err := svc.GetTask(ctx, alice, id)
		require.NoError(t, err)
		assert.Equal(t, before[id], task)
	}
	assertTaskInvariants(t, svc, alice, &teamID)
}

func TestCompleteMilestoneIntoFinalStage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	m, err := svc.CreateMilestone(ctx, alice, MilestoneInput{
		Name:         "Release",
		HandoffTo:    int64p(alice.UserID),
		HandoffStage: "done",
	})
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Tag release"})
	require.NoError(t, err)
	_, err = svc.AddTaskToMilestone(ctx, alice, m.ID, task.ID)
	require.NoError(t, err)

	_, err = svc.CompleteMilestone(ctx, alice, m.ID)
	require.NoError(t, err)

	task, err = svc.GetTask(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", task.Status)
	assert.NotNil(t, task.CompletedAt)

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCompleted, feed[0].Action)
}

func TestCompleteMilestoneWithoutHandoff(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	m, err := svc.CreateMilestone(ctx, alice, MilestoneInput{Name: "Plain"})
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Untouched"})
	require.NoError(t, err)
	_, err = svc.AddTaskToMilestone(ctx, alice, m.ID, task.ID)
	require.NoError(t, err)

	res, err := svc.CompleteMilestone(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.Zero(t, res.HandedOff)
	assert.Equal(t, 1, res.Total)
	assert.NotNil(t, res.Milestone.CompletedAt)

	got, err := svc.GetTask(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "backlog", got.Status)
	assert.Nil(t, got.Assignee)
}

func TestHandoffFailureLeavesMilestoneOpen(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teamID := newTestTeam(t, svc)

	qa, err := svc.CreateStage(ctx, alice, teamID, StageInput{Name: "QA"})
	require.NoError(t, err)
	m, err := svc.CreateMilestone(ctx, alice, MilestoneInput{
		TeamID:       &teamID,
		Name:         "RC",
		HandoffTo:    int64p(bob.UserID),
		HandoffStage: qa.ID,
	})
	require.NoError(t, err)
	for _, title := range []string{"T1", "T2"} {
		task, err := svc.CreateTask(ctx, alice, TaskInput{TeamID: &teamID, Title: title})
		require.NoError(t, err)
		_, err = svc.AddTaskToMilestone(ctx, alice, m.ID, task.ID)
		require.NoError(t, err)
	}
	err = svc.DeleteStage(ctx, alice, qa.ID)
	var inUse *models.StageInUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, 1, inUse.Milestones)

	// A replaced catalog can leave a rule pointing at a stage that is gone.
	stale, err := svc.store.GetMilestone(ctx, m.ID)
	require.NoError(t, err)
	stale.HandoffStage = "retired"
	require.NoError(t, svc.store.UpdateMilestone(ctx, stale))

	_, err = svc.CompleteMilestone(ctx, alice, m.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
	var handoff *models.HandoffError
	require.True(t, errors.As(err, &handoff))
	assert.Equal(t, 0, handoff.Succeeded)
	assert.Equal(t, 2, handoff.Total)

	detail, err := svc.GetMilestone(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.CompletedAt)
	for _, task := range detail.Tasks {
		assert.Equal(t, "backlog", task.Status)
		assert.Nil(t, task.Assignee)
	}

	_, err = svc.UpdateMilestone(ctx, alice, m.ID, MilestonePatch{HandoffStage: strp("testing")})
	require.NoError(t, err)
	res, err := svc.CompleteMilestone(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.HandedOff)
}

func TestMilestoneTaskLinks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateMilestone(ctx, alice, MilestoneInput{Name: "First"})
	require.NoError(t, err)
	second, err := svc.CreateMilestone(ctx, alice, MilestoneInput{Name: "Second"})
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Linked"})
	require.NoError(t, err)

	task, err = svc.AddTaskToMilestone(ctx, alice, first.ID, task.ID)
	require.NoError(t, err)
	require.NotNil(t, task.MilestoneID)
	assert.Equal(t, first.ID, *task.MilestoneID)

	detail, err := svc.GetMilestone(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.TaskCount)
	require.Len(t, detail.Tasks, 1)

	task, err = svc.AddTaskToMilestone(ctx, alice, second.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, *task.MilestoneID)
	detail, err = svc.GetMilestone(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Zero(t, detail.TaskCount)

	task, err = svc.RemoveTaskFromMilestone(ctx, alice, second.ID, task.ID)
	require.NoError(t, err)
	assert.Nil(t, task.MilestoneID)
	_, err = svc.RemoveTaskFromMilestone(ctx, alice, second.ID, task.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.AddTaskToMilestone(ctx, alice, second.ID, task.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteMilestone(ctx, alice, second.ID))

	task, err = svc.GetTask(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Nil(t, task.MilestoneID)
	_, err = svc.GetMilestone(ctx, alice, second.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	milestones, err := svc.ListMilestones(ctx, alice, nil)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, first.ID, milestones[0].ID)
}

func TestMilestoneValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teamID := newTestTeam(t, svc)

	_, err := svc.CreateMilestone(ctx, bob, MilestoneInput{TeamID: &teamID, Name: "Members cannot"})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	_, err = svc.CreateMilestone(ctx, alice, MilestoneInput{TeamID: &teamID, Name: "Outsider", HandoffTo: int64p(carol.UserID)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.CreateMilestone(ctx, alice, MilestoneInput{TeamID: &teamID, Name: "Bad stage", HandoffStage: "sprint_backlog"})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
	_, err = svc.CreateMilestone(ctx, alice, MilestoneInput{Name: "Personal", HandoffTo: int64p(bob.UserID)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.CreateMilestone(ctx, alice, MilestoneInput{TeamID: &teamID})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	m, err := svc.CreateMilestone(ctx, alice, MilestoneInput{TeamID: &teamID, Name: "Team"})
	require.NoError(t, err)
	personal, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Personal"})
	require.NoError(t, err)
	_, err = svc.AddTaskToMilestone(ctx, alice, m.ID, personal.ID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.GetMilestone(ctx, carol, m.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.GetMilestone(ctx, dave, m.ID)
	assert.NoError(t, err)
	_, err = svc.CompleteMilestone(ctx, bob, m.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	_, err = svc.CompleteMilestone(ctx, alice, m.ID)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, alice, TaskInput{TeamID: &teamID, Title: "Late"})
	require.NoError(t, err)
	_, err = svc.AddTaskToMilestone(ctx, alice, m.ID, task.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
}
