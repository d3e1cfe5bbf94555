package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/config"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/shenikar/safety_alert_dispatch/internal/service"
	"github.com/sirupsen/logrus"
)

const defaultNearbyRadiusKm = 10

type Handler struct {
	emergencyService service.EmergencyService
	logger           *logrus.Logger
	validate         *validator.Validate
	cfg              *config.Config
}

func NewHandler(emergencyService service.EmergencyService, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		emergencyService: emergencyService,
		logger:           logger,
		validate:         validator.New(),
		cfg:              cfg,
	}
}

// writeError переводит ошибку предметной области в HTTP-статус
func (h *Handler) writeError(c *gin.Context, log *logrus.Entry, err error) {
	status, message := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "actor token rejected"
	case errors.Is(err, models.ErrForbidden):
		status, message = http.StatusForbidden, "actor is not allowed to perform this action"
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "incident not found"
	case errors.Is(err, models.ErrStaleIncident),
		errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrNotAvailable),
		errors.Is(err, models.ErrTimestampImmutable):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrPipelineDegraded):
		status, message = http.StatusServiceUnavailable, "incident store unavailable, operators have been alerted"
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithError(err).Warn("Request rejected")
	}
	c.JSON(status, gin.H{"error": message})
}

func (h *Handler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return uuid.Nil, false
	}
	return id, true
}

// bind читает и валидирует тело запроса. false - ответ уже отправлен.
func (h *Handler) bind(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// @Summary Trigger an emergency
// @Description Raise an emergency alert. Returns the incident ID immediately; location, notification and dispatch continue asynchronously. Requires API key.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param emergency body TriggerEmergencyRequest true "Emergency alert"
// @Success 202 {object} TriggerEmergencyResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Incident store unavailable"
// @Router /emergencies [post]
func (h *Handler) triggerEmergency(c *gin.Context) {
	var input TriggerEmergencyRequest
	log := h.logger.WithField("method", "triggerEmergency")

	if !h.bind(c, log, &input) {
		return
	}

	id, err := h.emergencyService.Trigger(c.Request.Context(), DTOToTriggerRequest(input))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusAccepted, TriggerEmergencyResponse{IncidentID: id, Status: string(models.StatusLocating)})
}

// @Summary List emergencies
// @Description List incidents, newest first. Requires API key.
// @Tags Emergencies
// @Produce json
// @Security ApiKeyAuth
// @Param subject_id query string false "Subject ID"
// @Param status query string false "Incident status"
// @Param limit query int false "Max items (1-50)" default(20)
// @Success 200 {array} IncidentStatusResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /emergencies [get]
func (h *Handler) listEmergencies(c *gin.Context) {
	log := h.logger.WithField("method", "listEmergencies")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(models.DefaultListLimit)))

	filter := models.IncidentFilter{
		SubjectID: c.Query("subject_id"),
		Status:    models.Status(c.Query("status")),
		Limit:     limit,
	}
	snapshots, err := h.emergencyService.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, SnapshotsToResponses(snapshots))
}

// @Summary Get emergency status
// @Description Get a read-only snapshot of an incident with live responder ETAs. Requires API key.
// @Tags Emergencies
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentStatusResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /emergencies/{id} [get]
func (h *Handler) getEmergencyStatus(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getEmergencyStatus").WithField("id", id)

	snapshot, err := h.emergencyService.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, SnapshotToResponse(snapshot))
}

// @Summary Cancel an emergency
// @Description Cancel an active incident. Cancelling a closed incident returns its current status. Requires API key.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param cancel body CancelEmergencyRequest false "Cancel reason"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 503 {object} map[string]string "Incident store unavailable"
// @Router /emergencies/{id}/cancel [post]
func (h *Handler) cancelEmergency(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "cancelEmergency").WithField("id", id)

	var input CancelEmergencyRequest
	if c.Request.ContentLength > 0 && !h.bind(c, log, &input) {
		return
	}

	status, err := h.emergencyService.Cancel(c.Request.Context(), id, input.Reason)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{IncidentID: id, Status: string(status)})
}

// @Summary Update emergency status
// @Description Resolve an incident. Only an assigned responder or an operator may do this. Actor token goes in X-Actor-Token or the body.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param X-Actor-Token header string false "Actor token"
// @Param status body UpdateStatusRequest true "Next status"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} map[string]string "Invalid status or transition"
// @Failure 401 {object} map[string]string "Actor token rejected"
// @Failure 403 {object} map[string]string "Actor not allowed"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident already closed"
// @Router /emergencies/{id}/status [post]
func (h *Handler) updateEmergencyStatus(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateEmergencyStatus").WithField("id", id)

	var input UpdateStatusRequest
	if !h.bind(c, log, &input) {
		return
	}

	status, err := h.emergencyService.UpdateStatus(c.Request.Context(), id, models.Status(input.Status), actorToken(c, input.ActorToken))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{IncidentID: id, Status: string(status)})
}

// @Summary Report a newer location
// @Description Submit a later location report. It replaces the active location only if it is more accurate. Requires API key.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param location body LocationHintRequest true "Location report"
// @Success 200 {object} IncidentStatusResponse
// @Failure 400 {object} map[string]string "Invalid location"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident already closed"
// @Router /emergencies/{id}/location [post]
func (h *Handler) updateEmergencyLocation(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateEmergencyLocation").WithField("id", id)

	var input LocationHintRequest
	if !h.bind(c, log, &input) {
		return
	}

	snapshot, err := h.emergencyService.UpdateLocation(c.Request.Context(), id, *DTOToLocationHint(&input))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, SnapshotToResponse(snapshot))
}

// @Summary Escalate priority
// @Description Raise incident priority. Lowering it is rejected. Requires API key.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param priority body EscalateRequest true "New priority"
// @Success 200 {object} IncidentStatusResponse
// @Failure 400 {object} map[string]string "Invalid or lower priority"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident already closed"
// @Router /emergencies/{id}/escalate [post]
func (h *Handler) escalateEmergency(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "escalateEmergency").WithField("id", id)

	var input EscalateRequest
	if !h.bind(c, log, &input) {
		return
	}

	snapshot, err := h.emergencyService.Escalate(c.Request.Context(), id, models.Priority(input.Priority))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, SnapshotToResponse(snapshot))
}

// @Summary Nearby responders
// @Description Available responders around a point, ordered by estimated arrival. Nothing is assigned. Requires API key.
// @Tags Operators
// @Produce json
// @Security ApiKeyAuth
// @Param lat query number true "Latitude"
// @Param lon query number true "Longitude"
// @Param radius_km query number false "Search radius, km" default(10)
// @Param type query string false "Responder type"
// @Success 200 {array} CandidateResponse
// @Failure 400 {object} map[string]string "Invalid query"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /responders/nearby [get]
func (h *Handler) nearbyResponders(c *gin.Context) {
	log := h.logger.WithField("method", "nearbyResponders")

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}
	radius := float64(defaultNearbyRadiusKm)
	if raw := c.Query("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius_km"})
			return
		}
		radius = parsed
	}
	var rtype *models.ResponderType
	if raw := c.Query("type"); raw != "" {
		t := models.ResponderType(raw)
		rtype = &t
	}

	candidates, err := h.emergencyService.NearbyResponders(c.Request.Context(), models.Point{Latitude: lat, Longitude: lon}, radius, rtype)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, CandidatesToResponses(candidates))
}

// @Summary Degraded incidents
// @Description Incidents whose pipeline could not persist a step after all retries. Requires API key.
// @Tags Operators
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} DegradedIncidentResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /operators/degraded [get]
func (h *Handler) degradedIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "degradedIncidents")

	entries, err := h.emergencyService.DegradedIncidents(c.Request.Context())
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, DegradedToResponses(entries))
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
