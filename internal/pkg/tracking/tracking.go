// Package tracking is a fire-and-forget analytics sink. Emitting an event
// must never block a request or change its outcome, so every failure here is
// swallowed after logging.
package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Service posts events to an external collector. With no endpoint configured
// events are only written to the log, which keeps dev setups zero-config.
type Service struct {
	endpoint string
	key      string
	logger   *zap.Logger
	client   *http.Client
}

func New(endpoint, key string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		endpoint: endpoint,
		key:      key,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type event struct {
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Track records one event. Safe on a nil receiver; returns immediately and
// delivers in the background.
func (s *Service) Track(name string, props map[string]interface{}) {
	if s == nil {
		return
	}
	s.logger.Debug("track event", zap.String("event", name), zap.Any("props", props))
	if s.endpoint == "" {
		return
	}
	go s.deliver(event{Name: name, Properties: props, Timestamp: time.Now()})
}

func (s *Service) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("tracking delivery panicked", zap.Any("panic", r))
		}
	}()

	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("tracking marshal failed", zap.Error(err))
		return
	}
	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("tracking request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("tracking delivery failed", zap.String("event", ev.Name), zap.Error(err))
		return
	}
	resp.Body.Close()
}
