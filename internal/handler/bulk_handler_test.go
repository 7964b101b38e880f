package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/middleware"
	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
)

type bulkServiceMock struct {
	submitResp  *dto.SubmitBulkRunResponse
	submitErr   error
	previewResp *dto.ValidationReport
	previewErr  error
	exportData  []byte
	exportName  string
	exportErr   error
	actorID     string
}

func (m *bulkServiceMock) Submit(ctx context.Context, actorID string, req dto.SubmitBulkRunRequest) (*dto.SubmitBulkRunResponse, error) {
	m.actorID = actorID
	return m.submitResp, m.submitErr
}

func (m *bulkServiceMock) Preview(ctx context.Context, req dto.SubmitBulkRunRequest) (*dto.ValidationReport, error) {
	return m.previewResp, m.previewErr
}

func (m *bulkServiceMock) Export(ctx context.Context, runID string) ([]byte, string, error) {
	return m.exportData, m.exportName, m.exportErr
}

type rollbackServiceMock struct {
	resp   *dto.RollbackResponse
	err    error
	reason string
}

func (m *rollbackServiceMock) Rollback(ctx context.Context, runID, actorID, reason string) (*dto.RollbackResponse, error) {
	m.reason = reason
	return m.resp, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func submitBody(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(dto.SubmitBulkRunRequest{
		Identifiers: []string{"alice@school.test"},
		TargetRole:  models.RoleTeacher,
	})
	require.NoError(t, err)
	return payload
}

func TestBulkHandlerSubmitExecuted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bulkServiceMock{
		submitResp: &dto.SubmitBulkRunResponse{Run: &models.BulkRun{ID: "run-1", Status: models.RunStatusCompleted}},
	}
	handler := NewBulkHandler(mockSvc, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments", submitBody(t))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "admin-1", mockSvc.actorID)
	require.Contains(t, w.Body.String(), `"run-1"`)
}

func TestBulkHandlerSubmitAsync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bulkServiceMock{
		submitResp: &dto.SubmitBulkRunResponse{
			Run:   &models.BulkRun{ID: "run-1", Status: models.RunStatusPending},
			Async: true,
		},
	}
	handler := NewBulkHandler(mockSvc, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments", submitBody(t))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestBulkHandlerSubmitReportOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bulkServiceMock{
		submitResp: &dto.SubmitBulkRunResponse{Report: dto.ValidationReport{ItemCount: 1}},
	}
	handler := NewBulkHandler(mockSvc, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments", submitBody(t))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBulkHandlerSubmitUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBulkHandler(&bulkServiceMock{}, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments", submitBody(t))

	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBulkHandlerSubmitMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBulkHandler(&bulkServiceMock{}, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments", []byte(`{"identifiers":`))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestBulkHandlerSubmitServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bulkServiceMock{submitErr: appErrors.ErrPayloadTooLarge}
	handler := NewBulkHandler(mockSvc, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments", submitBody(t))
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Contains(t, w.Body.String(), "TOO_MANY_ROWS")
}

func TestBulkHandlerPreview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bulkServiceMock{
		previewResp: &dto.ValidationReport{ItemCount: 2, AffectedCount: 2},
	}
	handler := NewBulkHandler(mockSvc, nil, nil, nil)

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments/preview", submitBody(t))

	handler.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"affectedCount":2`)
}

func TestBulkHandlerRollback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &rollbackServiceMock{
		resp: &dto.RollbackResponse{RunID: "run-1", RolledBackCount: 2},
	}
	handler := NewBulkHandler(nil, nil, nil, mockSvc)

	payload, _ := json.Marshal(dto.RollbackRequest{Reason: "assigned to wrong cohort"})
	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments/run-1/rollback", payload)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Rollback(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "assigned to wrong cohort", mockSvc.reason)
}

func TestBulkHandlerRollbackMissingReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBulkHandler(nil, nil, nil, &rollbackServiceMock{})

	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments/run-1/rollback", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Rollback(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkHandlerRollbackNotTerminal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &rollbackServiceMock{err: appErrors.ErrRunNotTerminal}
	handler := NewBulkHandler(nil, nil, nil, mockSvc)

	payload, _ := json.Marshal(dto.RollbackRequest{Reason: "undo"})
	c, w := newGinContext(http.MethodPost, "/bulk/role-assignments/run-1/rollback", payload)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}
	c.Set(middleware.ContextUserKey, adminClaims())

	handler.Rollback(c)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "RUN_NOT_TERMINAL")
}

func TestBulkHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &bulkServiceMock{
		exportData: []byte("subject_id,identifier\nu-1,alice@school.test\n"),
		exportName: "bulk_run_run-1.csv",
	}
	handler := NewBulkHandler(mockSvc, nil, nil, nil)

	c, w := newGinContext(http.MethodGet, "/bulk/role-assignments/run-1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "attachment; filename=bulk_run_run-1.csv", w.Header().Get("Content-Disposition"))
	require.Contains(t, w.Body.String(), "alice@school.test")
}
