package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Health-check доступен без ключа
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("")
	protected.Use(APIKeyAuthMiddleware(h.cfg, h.logger))

	// Жизненный цикл экстренного вызова
	emergencies := protected.Group("/emergencies")
	{
		emergencies.POST("", h.triggerEmergency)
		emergencies.GET("", h.listEmergencies)
		emergencies.GET("/:id", h.getEmergencyStatus)
		emergencies.POST("/:id/cancel", h.cancelEmergency)
		emergencies.POST("/:id/status", h.updateEmergencyStatus)
		emergencies.POST("/:id/location", h.updateEmergencyLocation)
		emergencies.POST("/:id/escalate", h.escalateEmergency)
	}

	// Операторские представления
	protected.GET("/responders/nearby", h.nearbyResponders)
	protected.GET("/operators/degraded", h.degradedIncidents)
}
