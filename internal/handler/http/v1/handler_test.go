package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/config"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/shenikar/safety_alert_dispatch/internal/service"
	"github.com/shenikar/safety_alert_dispatch/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var apiKeyHeader = map[string]string{"X-API-Key": "test-api-key"}

// newTestHandler создает новый экземпляр Handler с мокированным сервисом
func newTestHandler(t *testing.T) (*Handler, *mocks.MockEmergencyService, *gin.Engine) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockEmergencyService(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys: []string{"test-api-key"},
	}

	handler := NewHandler(mockService, logger, cfg)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return handler, mockService, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func floatPtr(v float64) *float64 { return &v }

func testSnapshot(id uuid.UUID, status models.Status) *models.IncidentSnapshot {
	first := time.Now()
	return &models.IncidentSnapshot{
		ID:        id,
		SubjectID: "tourist-1",
		Kind:      models.KindPanic,
		Priority:  models.PriorityHigh,
		Status:    status,
		Location: models.Location{
			Point:    models.Point{Latitude: 26.1445, Longitude: 91.7362},
			Label:    "Current Location",
			Accuracy: models.AccuracyHigh,
		},
		Responders: []models.ResponderStatus{
			{ResponderID: "resp-001", Name: "Police Station Guwahati Central", Type: models.ResponderPolice, EstimatedArrivalMinutes: 2.5},
		},
		Notifications: []models.NotificationRecord{
			{ID: uuid.New(), AttemptID: uuid.New(), Recipient: models.Recipient{Channel: models.ChannelSMS, Address: "+91-9999999999"}, Outcome: models.OutcomeSent},
		},
		Audit:           []models.AuditEntry{{At: first, Step: "trigger", Message: "panic alert raised"}},
		CreatedAt:       first,
		FirstResponseAt: &first,
		Version:         7,
	}
}

func TestTriggerEmergency_Success(t *testing.T) {
	// Подготовка
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()
	reqBody := TriggerEmergencyRequest{
		SubjectID: "tourist-1",
		Kind:      "medical",
		Location:  &LocationHintRequest{Latitude: floatPtr(26.1445), Longitude: floatPtr(91.7362), AccuracyMeters: 15},
		Priority:  "critical",
	}

	// Ожидания
	mockService.EXPECT().
		Trigger(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req service.TriggerRequest) (uuid.UUID, error) {
			assert.Equal(t, "tourist-1", req.SubjectID)
			assert.Equal(t, models.KindMedical, req.Kind)
			assert.Equal(t, models.PriorityCritical, req.Priority)
			require.NotNil(t, req.Location)
			require.NotNil(t, req.Location.Point)
			assert.Equal(t, 26.1445, req.Location.Point.Latitude)
			assert.Equal(t, 15.0, req.Location.AccuracyMeters)
			return incidentID, nil
		}).Times(1)

	// Действие
	w := makeRequest(router, "POST", "/api/v1/emergencies", jsonBody(t, reqBody), apiKeyHeader)

	// Проверки
	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp TriggerEmergencyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, incidentID, resp.IncidentID)
	assert.Equal(t, "locating", resp.Status)
}

func TestTriggerEmergency_InvalidJSON(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().Trigger(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/emergencies", bytes.NewBufferString(`{"subject_id": "x"`), apiKeyHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestTriggerEmergency_ValidationError(t *testing.T) {
	tests := []struct {
		name    string
		body    TriggerEmergencyRequest
		message string
	}{
		{"missing subject", TriggerEmergencyRequest{Kind: "panic"}, "'SubjectID' failed on the 'required' tag"},
		{"unknown kind", TriggerEmergencyRequest{SubjectID: "u1", Kind: "alien"}, "'Kind' failed on the 'oneof' tag"},
		{"latitude out of range", TriggerEmergencyRequest{
			SubjectID: "u1",
			Kind:      "panic",
			Location:  &LocationHintRequest{Latitude: floatPtr(123), Longitude: floatPtr(91)},
		}, "'Latitude' failed on the 'latitude' tag"},
		{"latitude without longitude", TriggerEmergencyRequest{
			SubjectID: "u1",
			Kind:      "panic",
			Location:  &LocationHintRequest{Latitude: floatPtr(26)},
		}, "'Longitude' failed on the 'required_with' tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().Trigger(gomock.Any(), gomock.Any()).Times(0)

			w := makeRequest(router, "POST", "/api/v1/emergencies", jsonBody(t, tt.body), apiKeyHeader)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestTriggerEmergency_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", fmt.Errorf("%w: subject id is required", models.ErrInvalidRequest), http.StatusBadRequest},
		{"store degraded", fmt.Errorf("service: could not create incident: %w", models.ErrPipelineDegraded), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			mockService.EXPECT().Trigger(gomock.Any(), gomock.Any()).Return(uuid.Nil, tt.err).Times(1)

			body := TriggerEmergencyRequest{SubjectID: "u1", Kind: "panic"}
			w := makeRequest(router, "POST", "/api/v1/emergencies", jsonBody(t, body), apiKeyHeader)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestGetEmergencyStatus_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().GetStatus(gomock.Any(), incidentID).Return(testSnapshot(incidentID, models.StatusResponding), nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/emergencies/"+incidentID.String(), nil, apiKeyHeader)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp IncidentStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, incidentID, resp.ID)
	assert.Equal(t, "responding", resp.Status)
	assert.Equal(t, "high", resp.Location.Accuracy)
	require.Len(t, resp.Responders, 1)
	assert.Equal(t, "resp-001", resp.Responders[0].ResponderID)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "sms", resp.Notifications[0].Channel)
	assert.NotNil(t, resp.FirstResponseAt)
	assert.Equal(t, int64(7), resp.Version)
}

func TestGetEmergencyStatus_InvalidID(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().GetStatus(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/emergencies/not-a-uuid", nil, apiKeyHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid incident ID")
}

func TestGetEmergencyStatus_NotFound(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().GetStatus(gomock.Any(), incidentID).
		Return(nil, fmt.Errorf("service: could not get incident status: %w", models.ErrNotFound)).Times(1)

	w := makeRequest(router, "GET", "/api/v1/emergencies/"+incidentID.String(), nil, apiKeyHeader)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "incident not found")
}

func TestListEmergencies_PassesFilter(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().
		ListIncidents(gomock.Any(), models.IncidentFilter{SubjectID: "tourist-1", Status: models.StatusResponding, Limit: 5}).
		Return([]*models.IncidentSnapshot{testSnapshot(incidentID, models.StatusResponding)}, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/emergencies?subject_id=tourist-1&status=responding&limit=5", nil, apiKeyHeader)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []IncidentStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, incidentID, resp[0].ID)
}

func TestCancelEmergency(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().Cancel(gomock.Any(), incidentID, "false alarm").Return(models.StatusCancelled, nil).Times(1)
	mockService.EXPECT().Cancel(gomock.Any(), incidentID, "").Return(models.StatusResolved, nil).Times(1)

	w := makeRequest(router, "POST", "/api/v1/emergencies/"+incidentID.String()+"/cancel",
		jsonBody(t, CancelEmergencyRequest{Reason: "false alarm"}), apiKeyHeader)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)

	// закрытый инцидент: текущий статус без ошибки
	w = makeRequest(router, "POST", "/api/v1/emergencies/"+incidentID.String()+"/cancel", nil, apiKeyHeader)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"resolved"`)
}

func TestUpdateEmergencyStatus_ActorTokenFromHeader(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().
		UpdateStatus(gomock.Any(), incidentID, models.StatusResolved, "header-token").
		Return(models.StatusResolved, nil).Times(1)

	headers := map[string]string{"X-API-Key": "test-api-key", "X-Actor-Token": "header-token"}
	w := makeRequest(router, "POST", "/api/v1/emergencies/"+incidentID.String()+"/status",
		jsonBody(t, UpdateStatusRequest{Status: "resolved", ActorToken: "body-token"}), headers)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"resolved"`)
}

func TestUpdateEmergencyStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", fmt.Errorf("auth: invalid token: %w", models.ErrUnauthorized), http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("service: actor may not close: %w", models.ErrForbidden), http.StatusForbidden},
		{"invalid transition", fmt.Errorf("service: dispatching -> resolved: %w", models.ErrInvalidTransition), http.StatusBadRequest},
		{"stale", fmt.Errorf("service: incident is cancelled: %w", models.ErrStaleIncident), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mockService, router := newTestHandler(t)
			incidentID := uuid.New()
			mockService.EXPECT().
				UpdateStatus(gomock.Any(), incidentID, models.StatusResolved, "body-token").
				Return(models.Status(""), tt.err).Times(1)

			w := makeRequest(router, "POST", "/api/v1/emergencies/"+incidentID.String()+"/status",
				jsonBody(t, UpdateStatusRequest{Status: "resolved", ActorToken: "body-token"}), apiKeyHeader)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestUpdateEmergencyLocation(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().
		UpdateLocation(gomock.Any(), incidentID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, hint models.LocationHint) (*models.IncidentSnapshot, error) {
			assert.Equal(t, "shillong", hint.Region)
			assert.Nil(t, hint.Point)
			return testSnapshot(incidentID, models.StatusDispatching), nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/v1/emergencies/"+incidentID.String()+"/location",
		jsonBody(t, LocationHintRequest{Region: "shillong"}), apiKeyHeader)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEscalateEmergency(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().Escalate(gomock.Any(), incidentID, models.PriorityLow).
		Return(nil, fmt.Errorf("service: could not escalate incident: %w", models.ErrPriorityDowngrade)).Times(1)

	w := makeRequest(router, "POST", "/api/v1/emergencies/"+incidentID.String()+"/escalate",
		jsonBody(t, EscalateRequest{Priority: "low"}), apiKeyHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "priority cannot be lowered")
}

func TestNearbyResponders(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	medical := models.ResponderMedical

	mockService.EXPECT().
		NearbyResponders(gomock.Any(), models.Point{Latitude: 26.1445, Longitude: 91.7362}, 3.0, &medical).
		Return([]models.Candidate{{
			Responder:               models.Responder{ID: "resp-002", Name: "GMCH Emergency Services", Type: models.ResponderMedical},
			DistanceKm:              0.9,
			EstimatedArrivalMinutes: 1.2,
		}}, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/responders/nearby?lat=26.1445&lon=91.7362&radius_km=3&type=medical", nil, apiKeyHeader)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []CandidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "resp-002", resp[0].ID)
}

func TestNearbyResponders_MissingCoordinates(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().NearbyResponders(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/responders/nearby?lat=26.1", nil, apiKeyHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDegradedIncidents(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	incidentID := uuid.New()

	mockService.EXPECT().DegradedIncidents(gomock.Any()).Return([]models.DegradedIncident{
		{IncidentID: incidentID, Stage: "notify", Reason: "notify: pipeline degraded", Status: models.StatusNotifying},
	}, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/operators/degraded", nil, apiKeyHeader)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []DegradedIncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "notify", resp[0].Stage)
}

func TestHealthCheck_Success(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRoutes_RequireAPIKey(t *testing.T) {
	_, mockService, router := newTestHandler(t)

	mockService.EXPECT().GetStatus(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/emergencies/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	cfg := &config.Config{APIKeys: []string{"operator-key", "dispatch-key"}}

	router := gin.New()
	router.Use(APIKeyAuthMiddleware(cfg, logger))
	router.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{name: "x-api-key", headers: map[string]string{"X-API-Key": "dispatch-key"}, wantCode: http.StatusNoContent},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer operator-key"}, wantCode: http.StatusNoContent},
		{name: "x-api-key wins over bearer", headers: map[string]string{"X-API-Key": "operator-key", "Authorization": "Bearer wrong"}, wantCode: http.StatusNoContent},
		{name: "missing", headers: map[string]string{}, wantCode: http.StatusUnauthorized, wantBody: "API key required"},
		{name: "basic scheme ignored", headers: map[string]string{"Authorization": "Basic operator-key"}, wantCode: http.StatusUnauthorized, wantBody: "API key required"},
		{name: "unknown key", headers: map[string]string{"X-API-Key": "operator-key-2"}, wantCode: http.StatusUnauthorized, wantBody: "Invalid API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := makeRequest(router, "GET", "/probe", nil, tt.headers)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}
