package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/logging"
	"taskboard/internal/methodology"
	"taskboard/internal/models"
	"taskboard/internal/service"
	"taskboard/internal/storage/sqlite"
)

const testSecret = "test-secret"

var (
	alice = models.Principal{UserID: 1, Username: "alice", Name: "Alice"}
	bob   = models.Principal{UserID: 2, Username: "bob", Name: "Bob"}
	carol = models.Principal{UserID: 3, Username: "carol", Name: "Carol"}
)

type testServer struct {
	t      *testing.T
	srv    *Server
	store  *sqlite.Store
	tokens map[int64]string
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	store, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	catalog, err := methodology.Builtin()
	require.NoError(t, err)

	opts.JWTSecret = testSecret
	ts := &testServer{
		t:      t,
		srv:    New(service.New(store, catalog, nil), nil, opts),
		store:  store,
		tokens: map[int64]string{},
	}
	for _, p := range []models.Principal{alice, bob, carol} {
		token, err := GenerateToken([]byte(testSecret), p, time.Hour)
		require.NoError(t, err)
		ts.tokens[p.UserID] = token
	}
	return ts
}

// do sends a request as p; a zero principal sends no token.
func (ts *testServer) do(p models.Principal, method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := ts.tokens[p.UserID]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type taskEnvelope struct {
	Task models.Task `json:"task"`
}

type errorEnvelope struct {
	Error      string `json:"error"`
	Status     string `json:"status"`
	TaskCount  int    `json:"taskCount"`
	Milestones int    `json:"milestoneCount"`
	Succeeded  int    `json:"succeeded"`
	Total      int    `json:"total"`
}

// createTeam makes alice the owner of a kanban team with bob as a member.
func (ts *testServer) createTeam() int64 {
	ts.t.Helper()

	rec := ts.do(bob, http.MethodGet, "/api/teams", nil)
	require.Equal(ts.t, http.StatusOK, rec.Code)

	rec = ts.do(alice, http.MethodPost, "/api/teams", payload{"name": "Platform"})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	team := decode[struct {
		Team service.TeamDetail `json:"team"`
	}](ts.t, rec).Team

	rec = ts.do(alice, http.MethodPost, fmt.Sprintf("/api/teams/%d/members", team.ID), payload{"user_id": bob.UserID, "role": "member"})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return team.ID
}

type payload map[string]any

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(models.Principal{}, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(models.Principal{}, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := GenerateToken([]byte("other-secret"), alice, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	res := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	expired, err := GenerateToken([]byte(testSecret), alice, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken([]byte(testSecret), expired)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateToken([]byte(testSecret), unsigned)
	assert.Error(t, err)

	p, err := ValidateToken([]byte(testSecret), ts.tokens[alice.UserID])
	require.NoError(t, err)
	assert.Equal(t, alice, p)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(alice, http.MethodPost, "/api/tasks", payload{"title": "Write docs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[taskEnvelope](t, rec).Task
	assert.Equal(t, "backlog", task.Status)
	assert.Nil(t, task.CompletedAt)

	path := fmt.Sprintf("/api/tasks/%d", task.ID)
	rec = ts.do(alice, http.MethodPut, path, payload{"status": "sprint_backlog"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sprint_backlog", decode[errorEnvelope](t, rec).Status)

	rec = ts.do(alice, http.MethodPut, path, payload{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decode[taskEnvelope](t, rec).Task.CompletedAt)

	rec = ts.do(bob, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(bob, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(alice, http.MethodGet, "/api/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[struct {
		Activity []models.ActivityEntry `json:"activity"`
	}](t, rec).Activity
	require.Len(t, feed, 2)
	assert.Equal(t, models.ActionCompleted, feed[0].Action)

	rec = ts.do(alice, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(alice, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(alice, http.MethodGet, "/api/tasks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(alice, http.MethodGet, "/api/tasks?team_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamErrorsOverHTTP(t *testing.T) {
	ts := newTestServer(t, Options{})
	teamID := ts.createTeam()
	base := fmt.Sprintf("/api/teams/%d", teamID)

	rec := ts.do(carol, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(alice, http.MethodGet, "/api/teams/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(alice, http.MethodPut, fmt.Sprintf("%s/members/%d", base, alice.UserID), payload{"role": "member"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = ts.do(alice, http.MethodDelete, fmt.Sprintf("%s/members/%d", base, alice.UserID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = ts.do(alice, http.MethodPost, base+"/members", payload{"user_id": bob.UserID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(bob, http.MethodPost, base+"/stages", payload{"name": "Blocked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(alice, http.MethodPost, base+"/stages", payload{"name": "Blocked"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stage := decode[struct {
		Stage models.Stage `json:"stage"`
	}](t, rec).Stage

	rec = ts.do(bob, http.MethodPost, "/api/tasks", payload{"team_id": teamID, "title": "Stuck", "status": stage.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(alice, http.MethodDelete, "/api/stages/"+stage.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, decode[errorEnvelope](t, rec).TaskCount)

	rec = ts.do(bob, http.MethodGet, base+"/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode[struct {
		Board service.Board `json:"board"`
	}](t, rec).Board
	require.Len(t, board.Columns, 8)
	assert.Len(t, board.Columns[7].Tasks, 1)

	rec = ts.do(alice, http.MethodPut, base+"/methodology", payload{"methodology": "scrum"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[service.MigrationResult](t, rec)
	assert.Equal(t, "kanban", result.From)
	assert.Zero(t, result.Migrated)

	rec = ts.do(alice, http.MethodPut, "/api/methodology", payload{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(alice, http.MethodPut, "/api/methodology", payload{"methodology": "xp"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMilestoneCompletionOverHTTP(t *testing.T) {
	ts := newTestServer(t, Options{})
	teamID := ts.createTeam()

	rec := ts.do(alice, http.MethodPost, "/api/milestones", payload{
		"team_id":       teamID,
		"name":          "Beta",
		"handoff_to":    bob.UserID,
		"handoff_stage": "review",
		"due_date":      "2024-06-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[struct {
		Milestone models.Milestone `json:"milestone"`
	}](t, rec).Milestone
	require.NotNil(t, m.DueDate)

	var taskIDs []int64
	for _, title := range []string{"T1", "T2"} {
		rec = ts.do(alice, http.MethodPost, "/api/tasks", payload{"team_id": teamID, "title": title})
		require.Equal(t, http.StatusCreated, rec.Code)
		task := decode[taskEnvelope](t, rec).Task
		rec = ts.do(alice, http.MethodPost, fmt.Sprintf("/api/milestones/%d/tasks/%d", m.ID, task.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		taskIDs = append(taskIDs, task.ID)
	}

	complete := fmt.Sprintf("/api/milestones/%d/complete", m.ID)
	rec = ts.do(bob, http.MethodPost, complete, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(alice, http.MethodPost, complete, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[service.CompletionResult](t, rec)
	assert.Equal(t, 2, result.HandedOff)
	assert.False(t, result.AlreadyCompleted)

	for _, id := range taskIDs {
		rec = ts.do(bob, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		task := decode[taskEnvelope](t, rec).Task
		assert.Equal(t, "review", task.Status)
		assert.Equal(t, "Bob", task.AssigneeName)
	}

	rec = ts.do(alice, http.MethodPost, complete, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[service.CompletionResult](t, rec).AlreadyCompleted)

	rec = ts.do(alice, http.MethodGet, fmt.Sprintf("/api/milestones/%d", m.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct {
		Milestone service.MilestoneDetail `json:"milestone"`
	}](t, rec).Milestone
	assert.Len(t, detail.Tasks, 2)
	assert.NotNil(t, detail.CompletedAt)
}

func TestHandoffFailureOverHTTP(t *testing.T) {
	ts := newTestServer(t, Options{})
	teamID := ts.createTeam()

	rec := ts.do(alice, http.MethodPost, fmt.Sprintf("/api/teams/%d/stages", teamID), payload{"name": "QA"})
	require.Equal(t, http.StatusCreated, rec.Code)
	stage := decode[struct {
		Stage models.Stage `json:"stage"`
	}](t, rec).Stage

	rec = ts.do(alice, http.MethodPost, "/api/milestones", payload{"team_id": teamID, "name": "RC", "handoff_to": bob.UserID, "handoff_stage": stage.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[struct {
		Milestone models.Milestone `json:"milestone"`
	}](t, rec).Milestone

	rec = ts.do(alice, http.MethodPost, "/api/tasks", payload{"team_id": teamID, "title": "T1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[taskEnvelope](t, rec).Task
	rec = ts.do(alice, http.MethodPost, fmt.Sprintf("/api/milestones/%d/tasks/%d", m.ID, task.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(alice, http.MethodDelete, "/api/stages/"+stage.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	blocked := decode[errorEnvelope](t, rec)
	assert.Zero(t, blocked.TaskCount)
	assert.Equal(t, 1, blocked.Milestones)

	// A catalog swapped between restarts can leave a rule on a stage that no
	// longer exists.
	stale, err := ts.store.GetMilestone(context.Background(), m.ID)
	require.NoError(t, err)
	stale.HandoffStage = "retired"
	require.NoError(t, ts.store.UpdateMilestone(context.Background(), stale))

	rec = ts.do(alice, http.MethodPost, fmt.Sprintf("/api/milestones/%d/complete", m.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorEnvelope](t, rec)
	assert.Equal(t, 0, body.Succeeded)
	assert.Equal(t, 1, body.Total)
}

func TestAccessLogAndFallback(t *testing.T) {
	var buf bytes.Buffer
	access := logrus.New()
	access.SetOutput(&buf)
	access.SetFormatter(&logging.AccessFormatter{SystemName: "taskboard"})

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>board</html>"), 0o600))

	ts := newTestServer(t, Options{AccessLog: access, StaticDir: static})

	rec := ts.do(models.Principal{}, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, rec.Body.String())

	rec = ts.do(models.Principal{}, http.MethodGet, "/teams/4/board", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "board")

	requestID := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, requestID)
	assert.Contains(t, buf.String(), "Event ID: "+requestID)
	assert.Contains(t, buf.String(), "path=/teams/4/board")
}

func TestFailAlwaysMapsHandoffToConflict(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/milestones/1/complete", nil)

	ts.srv.fail(c, &models.HandoffError{MilestoneID: 1, Succeeded: 1, Total: 3, Cause: models.NotFoundf("task 9")})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorEnvelope](t, rec)
	assert.Equal(t, 1, body.Succeeded)
	assert.Equal(t, 3, body.Total)
}
