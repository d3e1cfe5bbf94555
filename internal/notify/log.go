package notify

import (
	"context"

	"github.com/shenikar/safety_alert_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// LogSink только пишет оповещение в лог. Используется, когда провайдер канала не настроен.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, msg models.Message) error {
	s.logger.WithFields(logrus.Fields{
		"service":     "notify",
		"channel":     msg.Recipient.Channel,
		"recipient":   msg.Recipient.Address,
		"incident_id": msg.IncidentID,
		"attempt_id":  msg.AttemptID,
	}).Info("[EMERGENCY NOTIFICATION] " + msg.Body)
	return nil
}
