package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	persistencememory "github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/queue"
	queuememory "github.com/dukex/flowrun/pkg/queue/memory"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/dukex/flowrun/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app         *fiber.App
	persistence persistence.Persistence
	queue       *queuememory.Queue
	workflows   *services.Workflow
}

func setupTestApp(t *testing.T, p persistence.Persistence) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queuememory.New(logger, queue.DefaultRetryPolicy)
	bus := eventbus.NewGoChannel(logger)

	t.Cleanup(func() {
		_ = q.Close()
		_ = bus.Close()
	})

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	validate := validator.New()
	scheduler := services.NewScheduler(p, q, logger)
	workflows := services.NewWorkflow(p, reg, scheduler, validate, logger)
	executions := services.NewExecution(p, workflows, q, bus, logger)

	handlers := web.NewAPIHandlers(web.Services{
		Workflows:  workflows,
		Triggers:   services.NewTrigger(p, scheduler, validate, logger),
		Executions: executions,
		Webhooks:   services.NewWebhook(p, executions),
		Events:     bus,
		Registry:   reg,
		Validator:  validate,
		Logger:     logger,
	})

	return &testServer{
		app:         web.NewApp(handlers, web.AppConfig{}),
		persistence: p,
		queue:       q,
		workflows:   workflows,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func (s *testServer) createWorkflow(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	created, err := s.workflows.Create(context.Background(), workflow)
	require.NoError(t, err)

	return created
}

func (s *testServer) pending(t *testing.T) int {
	t.Helper()

	stats, err := s.queue.Stats(context.Background())
	require.NoError(t, err)

	return stats.Pending
}

func manualWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow(
		[]models.WorkflowNode{
			testutil.CreateTestNode(testutil.WithID("start"), testutil.WithManualTrigger()),
			testutil.CreateTestNode(testutil.WithID("set")),
		},
		[]models.WorkflowEdge{testutil.CreateTestEdge("start", "set")},
	)
}

func webhookWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow(
		[]models.WorkflowNode{
			testutil.CreateTestNode(testutil.WithID("hook"), testutil.WithWebhookTrigger(map[string]any{
				"method":  "POST",
				"headers": map[string]any{"X-Signature": "secret"},
				"payload": map[string]any{"event": "push"},
			})),
			testutil.CreateTestNode(testutil.WithID("set")),
		},
		[]models.WorkflowEdge{testutil.CreateTestEdge("hook", "set")},
	)
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    web.WorkflowRequest
		expectedStatus int
		expectedType   string
	}{
		{
			name: "successful creation",
			requestBody: web.WorkflowRequest{
				Name:  "Test Workflow",
				Nodes: manualWorkflow().Nodes,
				Edges: manualWorkflow().Edges,
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "name too short",
			requestBody:    web.WorkflowRequest{Name: "ab"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name: "cycle",
			requestBody: web.WorkflowRequest{
				Name: "Cyclic Workflow",
				Nodes: []models.WorkflowNode{
					testutil.CreateTestNode(testutil.WithID("a")),
					testutil.CreateTestNode(testutil.WithID("b")),
				},
				Edges: []models.WorkflowEdge{
					testutil.CreateTestEdge("a", "b"),
					testutil.CreateTestEdge("b", "a"),
				},
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "workflow_cycle",
		},
		{
			name: "unknown node type",
			requestBody: web.WorkflowRequest{
				Name:  "Unknown Node",
				Nodes: []models.WorkflowNode{testutil.CreateTestNode(testutil.WithType("teleport"))},
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "unknown_node_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestApp(t, persistencememory.NewPersistence())

			status, body := s.do(t, http.MethodPost, "/workflows", tt.requestBody, nil)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				var problem map[string]any
				require.NoError(t, json.Unmarshal(body, &problem))
				assert.Equal(t, tt.expectedType, problem["type"])

				return
			}

			var workflow models.Workflow
			require.NoError(t, json.Unmarshal(body, &workflow))
			assert.NotEmpty(t, workflow.ID)
			assert.Len(t, workflow.Nodes, 2)
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())
	workflow := s.createWorkflow(t, manualWorkflow())

	status, body := s.do(t, http.MethodGet, "/workflows/"+workflow.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.Workflow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, workflow.ID, fetched.ID)

	status, body = s.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/deactivate", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.False(t, fetched.IsActive)

	status, body = s.do(t, http.MethodGet, "/workflows", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Workflows  []models.Workflow `json:"workflows"`
		TotalCount int               `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)

	status, _ = s.do(t, http.MethodDelete, "/workflows/"+workflow.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(t, http.MethodGet, "/workflows/"+workflow.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ExecuteWorkflow(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())
	workflow := s.createWorkflow(t, manualWorkflow())

	status, body := s.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/execute",
		web.ExecuteRequest{Input: map[string]any{"name": "flowrun"}}, nil)
	require.Equal(t, http.StatusAccepted, status, string(body))

	var accepted web.ExecutionAccepted
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.NotEmpty(t, accepted.ExecutionID)
	assert.Equal(t, 1, s.pending(t))

	status, _ = s.do(t, http.MethodPost, "/workflows/missing/execute", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Triggers(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())
	workflow := s.createWorkflow(t, manualWorkflow())

	status, body := s.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/triggers",
		web.TriggerRequest{Type: models.TriggerTypeCron, CronExpr: "*/5 * * * *", IsActive: true}, nil)
	require.Equal(t, http.StatusCreated, status, string(body))

	var trigger models.Trigger
	require.NoError(t, json.Unmarshal(body, &trigger))
	assert.Equal(t, workflow.ID, trigger.WorkflowID)

	status, _ = s.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/triggers",
		web.TriggerRequest{Type: models.TriggerTypeCron}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/triggers", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var triggers []models.Trigger
	require.NoError(t, json.Unmarshal(body, &triggers))
	assert.Len(t, triggers, 1)

	status, _ = s.do(t, http.MethodDelete, "/workflows/"+workflow.ID+"/triggers/"+trigger.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAPIHandlers_Webhook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		headers        map[string]string
		body           any
		expectedStatus int
	}{
		{
			name:           "accepted",
			method:         http.MethodPost,
			headers:        map[string]string{"X-Signature": "secret"},
			body:           map[string]any{"event": "push"},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "wrong header",
			method:         http.MethodPost,
			headers:        map[string]string{"X-Signature": "forged"},
			body:           map[string]any{"event": "push"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong method",
			method:         http.MethodPut,
			headers:        map[string]string{"X-Signature": "secret"},
			body:           map[string]any{"event": "push"},
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "wrong payload",
			method:         http.MethodPost,
			headers:        map[string]string{"X-Signature": "secret"},
			body:           map[string]any{"event": "tag"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupTestApp(t, persistencememory.NewPersistence())
			workflow := s.createWorkflow(t, webhookWorkflow())

			status, body := s.do(t, tt.method, "/webhooks/"+workflow.ID, tt.body, tt.headers)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedStatus == http.StatusAccepted {
				var accepted web.ExecutionAccepted
				require.NoError(t, json.Unmarshal(body, &accepted))
				assert.NotEmpty(t, accepted.ExecutionID)
				assert.Equal(t, 1, s.pending(t))

				return
			}

			var rejected web.WebhookErrorResponse
			require.NoError(t, json.Unmarshal(body, &rejected))
			assert.NotEmpty(t, rejected.Error)
			assert.Equal(t, 0, s.pending(t))

			executions, err := s.persistence.ExecutionsByWorkflow(context.Background(), workflow.ID)
			require.NoError(t, err)
			assert.Empty(t, executions)
		})
	}
}

func TestAPIHandlers_WebhookUnknownWorkflow(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())

	status, _ := s.do(t, http.MethodPost, "/webhooks/missing", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func runningExecution(t *testing.T, p persistence.Persistence, workflowID string) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:          models.NewExecutionID(),
		WorkflowID:  workflowID,
		TriggerType: models.TriggerTypeManual,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
		StateIn:     map[string]any{},
		StateOut:    map[string]any{},
	}
	require.NoError(t, p.CreateExecution(context.Background(), execution))

	return execution
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())
	workflow := s.createWorkflow(t, manualWorkflow())
	execution := runningExecution(t, s.persistence, workflow.ID)

	status, body := s.do(t, http.MethodGet, "/executions/"+execution.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var fetched models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, models.ExecutionStatusRunning, fetched.Status)

	status, body = s.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/executions", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var executions []models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &executions))
	assert.Len(t, executions, 1)

	status, body = s.do(t, http.MethodGet, "/executions/"+execution.ID+"/node-runs", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", strings.TrimSpace(string(body)))

	status, body = s.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, models.ExecutionStatusCanceled, fetched.Status)

	status, _ = s.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodGet, "/executions/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_StreamFinishedExecution(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())
	workflow := s.createWorkflow(t, manualWorkflow())
	execution := runningExecution(t, s.persistence, workflow.ID)

	status, _ := s.do(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodGet, "/executions/"+execution.ID+"/events", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "event: execution.snapshot\n")
	assert.Contains(t, string(body), `"status":"CANCELED"`)
}

func TestAPIHandlers_NodeTypesAndMetrics(t *testing.T) {
	t.Parallel()

	s := setupTestApp(t, persistencememory.NewPersistence())

	status, body := s.do(t, http.MethodGet, "/node-types", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var nodeTypes []registry.NodeType
	require.NoError(t, json.Unmarshal(body, &nodeTypes))
	assert.NotEmpty(t, nodeTypes)

	status, body = s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "flowrun_")
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		healthErr      error
		expectedStatus int
		expectedState  string
	}{
		{name: "healthy", expectedStatus: http.StatusOK, expectedState: "healthy"},
		{name: "store down", healthErr: errors.New("connection refused"), expectedStatus: http.StatusServiceUnavailable, expectedState: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &mocks.MockPersistence{}
			p.On("HealthCheck", mock.Anything).Return(tt.healthErr)

			s := setupTestApp(t, p)

			status, body := s.do(t, http.MethodGet, "/health", nil, nil)
			assert.Equal(t, tt.expectedStatus, status)

			var health map[string]any
			require.NoError(t, json.Unmarshal(body, &health))
			assert.Equal(t, tt.expectedState, health["status"])
			p.AssertExpectations(t)
		})
	}
}
