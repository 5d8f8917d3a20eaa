package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/models"
)

func TestCreateTaskDefaultsToInitialStage(t *testing.T) {
	svc := newTestService(t)

	task, err := svc.CreateTask(context.Background(), alice, TaskInput{Title: "Write docs"})
	require.NoError(t, err)

	assert.Equal(t, "backlog", task.Status)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, models.PriorityMed, task.Priority)
	assert.Equal(t, alice.UserID, task.OwnerUserID)
	assert.Nil(t, task.TeamID)

	feed, err := svc.ActivityFeed(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, models.ActionCreated, feed[0].Action)
	assert.Equal(t, "Created in backlog", feed[0].Details)
}

func TestCreateTaskValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, alice, TaskInput{Title: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.CreateTask(ctx, alice, TaskInput{Title: "x", Priority: "urgent"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.CreateTask(ctx, alice, TaskInput{Title: "x", Status: "sprint_backlog"})
	require.ErrorIs(t, err, models.ErrInvalidStatus)
	var statusErr *models.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "sprint_backlog", statusErr.Status)

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "x", Priority: "medium"})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMed, task.Priority)
}

func TestCreateTaskIntoFinalStage(t *testing.T) {
	svc := newTestService(t)

	task, err := svc.CreateTask(context.Background(), alice, TaskInput{Title: "Already shipped", Status: "done"})
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, fixedNow.Equal(*task.CompletedAt))
}

func TestStatusTransitionsTrackCompletion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Ship it", Status: "todo"})
	require.NoError(t, err)
	require.Nil(t, task.CompletedAt)

	task, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Status: strp("done")})
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, fixedNow.Equal(*task.CompletedAt))

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCompleted, feed[0].Action)
	assert.Equal(t, "Moved from todo to done", feed[0].Details)

	task, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Status: strp("archived")})
	require.NoError(t, err)
	assert.NotNil(t, task.CompletedAt)
	feed, err = svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusChanged, feed[0].Action)

	task, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Status: strp("todo")})
	require.NoError(t, err)
	assert.Nil(t, task.CompletedAt)
	feed, err = svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusChanged, feed[0].Action)
	assert.Len(t, feed, 4)

	assertTaskInvariants(t, svc, alice, nil)
}

func TestUpdateTaskFieldsOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Draft"})
	require.NoError(t, err)

	task, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Title: strp("Final"), Priority: strp("high")})
	require.NoError(t, err)
	assert.Equal(t, "Final", task.Title)
	assert.Equal(t, models.PriorityHigh, task.Priority)

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, feed[0].Action)
	assert.Equal(t, `Renamed from "Draft"; Priority med to high`, feed[0].Details)
}

func TestUpdateTaskRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Stay put"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Status: strp("verification")})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	got, err := svc.GetTask(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "backlog", got.Status)

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestPersonalTasksAreIsolated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Private"})
	require.NoError(t, err)

	_, err = svc.GetTask(ctx, bob, task.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.UpdateTask(ctx, bob, task.ID, TaskPatch{Title: strp("Mine now")})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteTask(ctx, bob, task.ID), models.ErrNotFound)

	tasks, err := svc.ListTasks(ctx, bob, models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = svc.GetTask(ctx, alice, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTeamTaskPermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teamID := newTestTeam(t, svc)

	_, err := svc.CreateTask(ctx, dave, TaskInput{TeamID: &teamID, Title: "Viewer task"})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	_, err = svc.CreateTask(ctx, carol, TaskInput{TeamID: &teamID, Title: "Outsider task"})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	own, err := svc.CreateTask(ctx, bob, TaskInput{TeamID: &teamID, Title: "Bob's"})
	require.NoError(t, err)
	others, err := svc.CreateTask(ctx, alice, TaskInput{TeamID: &teamID, Title: "Alice's"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, bob, own.ID, TaskPatch{Status: strp("doing")})
	assert.NoError(t, err)
	_, err = svc.UpdateTask(ctx, bob, others.ID, TaskPatch{Status: strp("doing")})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.ErrorIs(t, svc.DeleteTask(ctx, bob, others.ID), models.ErrPermissionDenied)

	_, err = svc.GetTask(ctx, dave, own.ID)
	assert.NoError(t, err)
	_, err = svc.GetTask(ctx, carol, own.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.ListTasks(ctx, carol, models.TaskFilter{TeamID: &teamID})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.UpdateTask(ctx, alice, own.ID, TaskPatch{Title: strp("Edited by owner")})
	assert.NoError(t, err)

	tasks, err := svc.ListTasks(ctx, dave, models.TaskFilter{TeamID: &teamID, Status: "doing"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, own.ID, tasks[0].ID)
}

func TestAssignTask(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teamID := newTestTeam(t, svc)

	task, err := svc.CreateTask(ctx, alice, TaskInput{TeamID: &teamID, Title: "Review PR"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Assignee: int64p(carol.UserID)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	task, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Assignee: int64p(bob.UserID)})
	require.NoError(t, err)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, bob.UserID, *task.Assignee)
	assert.Equal(t, "Bob", task.AssigneeName)

	own, err := svc.CreateTask(ctx, bob, TaskInput{TeamID: &teamID, Title: "Bob's"})
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, bob, own.ID, TaskPatch{Assignee: int64p(alice.UserID)})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	task, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{ClearAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, task.Assignee)
	assert.Empty(t, task.AssigneeName)

	personal, err := svc.CreateTask(ctx, carol, TaskInput{Title: "Solo", Assignee: int64p(carol.UserID)})
	require.NoError(t, err)
	assert.Equal(t, "carol", personal.AssigneeName)
	_, err = svc.UpdateTask(ctx, carol, personal.ID, TaskPatch{Assignee: int64p(bob.UserID)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestDeleteTaskLogsBeforeRemoval(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Temporary"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTask(ctx, alice, task.ID))

	_, err = svc.GetTask(ctx, alice, task.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, models.ActionDeleted, feed[0].Action)
	assert.Equal(t, task.ID, feed[0].TaskID)
	assert.Equal(t, "Temporary", feed[0].TaskTitle)
}

func TestActivityRetention(t *testing.T) {
	svc := newTestService(t, WithActivityRetention(3))
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, alice, TaskInput{Title: "Busy"})
	require.NoError(t, err)
	for _, status := range []string{"todo", "doing", "review", "testing"} {
		_, err = svc.UpdateTask(ctx, alice, task.ID, TaskPatch{Status: strp(status)})
		require.NoError(t, err)
	}

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "Moved from review to testing", feed[0].Details)
	assert.Equal(t, "Moved from todo to doing", feed[2].Details)
}

func TestActivityFeedIsBounded(t *testing.T) {
	svc := newTestService(t, WithActivityRetention(0))
	ctx := context.Background()

	var last models.Task
	for i := 0; i < FeedLimit+20; i++ {
		task, err := svc.CreateTask(ctx, alice, TaskInput{Title: fmt.Sprintf("Task %d", i)})
		require.NoError(t, err)
		last = task
	}

	feed, err := svc.ActivityFeed(ctx, alice)
	require.NoError(t, err)
	require.Len(t, feed, FeedLimit)
	assert.Equal(t, last.ID, feed[0].TaskID)
	assert.Equal(t, last.ID-FeedLimit+1, feed[FeedLimit-1].TaskID)
	for i := 1; i < len(feed); i++ {
		assert.Greater(t, feed[i-1].ID, feed[i].ID)
	}
}
