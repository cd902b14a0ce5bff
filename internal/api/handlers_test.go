package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/models"
)

// fakeService 可编排的转发服务替身
type fakeService struct {
	configSource string
	configDest   string
	configErr    error

	startProgress *models.ForwardProgress
	startErr      error
	startCalls    int

	resumeProgress *models.ForwardProgress
	resumeErr      error

	stopErr   error
	stopCalls int

	progress    *models.ForwardProgress
	progressErr error

	statusConfig *models.BotConfig
	statusErr    error
}

func (s *fakeService) SetConfig(ctx context.Context, source, dest string) error {
	s.configSource, s.configDest = source, dest
	return s.configErr
}

func (s *fakeService) Start(ctx context.Context, startID, endID int, notify forward.Notifier) (*models.ForwardProgress, error) {
	s.startCalls++
	return s.startProgress, s.startErr
}

func (s *fakeService) Resume(ctx context.Context, notify forward.Notifier) (*models.ForwardProgress, error) {
	return s.resumeProgress, s.resumeErr
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.stopCalls++
	return s.stopErr
}

func (s *fakeService) Progress(ctx context.Context) (*models.ForwardProgress, error) {
	return s.progress, s.progressErr
}

func (s *fakeService) Status(ctx context.Context) (*models.BotConfig, *models.ForwardProgress, error) {
	return s.statusConfig, s.progress, s.statusErr
}

func doRequest(t *testing.T, service ForwardService, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	NewServer(":0", service).srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := doRequest(t, &fakeService{}, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestConfigureEndpoint(t *testing.T) {
	service := &fakeService{}
	w := doRequest(t, service, http.MethodPost, "/api/v1/config", ConfigureRequest{
		SourceChannel: "-1001",
		DestChannel:   "-1002",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "-1001", service.configSource)
	assert.Equal(t, "-1002", service.configDest)
}

func TestConfigureEndpointRejectsMissingFields(t *testing.T) {
	w := doRequest(t, &fakeService{}, http.MethodPost, "/api/v1/config", map[string]string{
		"sourceChannel": "-1001",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartForwardEndpoint(t *testing.T) {
	service := &fakeService{
		startProgress: &models.ForwardProgress{
			ID:           models.CurrentProgressID,
			StartID:      1,
			EndID:        500,
			TotalBatches: 5,
			IsActive:     true,
		},
	}
	w := doRequest(t, service, http.MethodPost, "/api/v1/forward", ForwardRequest{
		StartMessageID: 1,
		EndMessageID:   500,
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, service.startCalls)

	var got models.ForwardProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 5, got.TotalBatches)
	assert.True(t, got.IsActive)
}

func TestStartForwardEndpointValidation(t *testing.T) {
	// 缺字段
	w := doRequest(t, &fakeService{}, http.MethodPost, "/api/v1/forward", map[string]int{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 起点大于终点
	w = doRequest(t, &fakeService{}, http.MethodPost, "/api/v1/forward", ForwardRequest{
		StartMessageID: 100,
		EndMessageID:   1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartForwardEndpointServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "not configured", err: forward.ErrNotConfigured, code: http.StatusBadRequest},
		{name: "job active", err: forward.ErrJobActive, code: http.StatusConflict},
		{name: "invalid range", err: forward.ErrInvalidRange, code: http.StatusBadRequest},
		{name: "infrastructure failure", err: context.DeadlineExceeded, code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, &fakeService{startErr: tt.err}, http.MethodPost, "/api/v1/forward", ForwardRequest{
				StartMessageID: 1,
				EndMessageID:   100,
			})
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestResumeEndpoint(t *testing.T) {
	service := &fakeService{
		resumeProgress: &models.ForwardProgress{
			ID:           models.CurrentProgressID,
			StartID:      1,
			EndID:        1000,
			BatchSize:    100,
			CurrentBatch: 3,
			IsActive:     true,
		},
	}
	w := doRequest(t, service, http.MethodPost, "/api/v1/forward/resume", nil)

	require.Equal(t, http.StatusAccepted, w.Code)

	var got struct {
		ResumingFrom int `json:"resumingFrom"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 301, got.ResumingFrom)
}

func TestResumeEndpointNoActiveJob(t *testing.T) {
	w := doRequest(t, &fakeService{resumeErr: forward.ErrNoActiveJob}, http.MethodPost, "/api/v1/forward/resume", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStopEndpoint(t *testing.T) {
	service := &fakeService{}
	w := doRequest(t, service, http.MethodPost, "/api/v1/forward/stop", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, service.stopCalls)
}

func TestProgressEndpoint(t *testing.T) {
	service := &fakeService{
		progress: &models.ForwardProgress{
			ID:           models.CurrentProgressID,
			SuccessCount: 280,
			FailedCount:  5,
			SkippedCount: 15,
			IsActive:     true,
		},
	}
	w := doRequest(t, service, http.MethodGet, "/api/v1/forward/progress", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var got models.ForwardProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 280, got.SuccessCount)
}

func TestProgressEndpointNoData(t *testing.T) {
	w := doRequest(t, &fakeService{}, http.MethodGet, "/api/v1/forward/progress", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "{}", w.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	service := &fakeService{
		statusConfig: &models.BotConfig{
			ID:            models.CurrentConfigID,
			SourceChannel: "-1001",
			DestChannel:   "-1002",
		},
	}
	w := doRequest(t, service, http.MethodGet, "/api/v1/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "-1001")
}

func TestCORSPreflight(t *testing.T) {
	w := doRequest(t, &fakeService{}, http.MethodOptions, "/api/v1/status", nil)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
