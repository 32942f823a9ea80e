package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// Sink implements domain.EventSink against the backend ingestion endpoints.
//
// Delivery is best-effort and lossy by design: each send is a single POST
// with no retry, backoff, or queuing, and every error is logged and
// swallowed. Do not add reliability here; consumers depend on sends never
// failing visibly.
type Sink struct {
	client *Client
	logger *zap.Logger
}

// NewSink creates a best-effort event sink over an API client. The ingestion
// endpoints are device-facing and take no bearer token.
func NewSink(client *Client, logger *zap.Logger) *Sink {
	return &Sink{client: client, logger: logger}
}

// SendLocation delivers one location sample.
func (s *Sink) SendLocation(ctx context.Context, sample domain.LocationSample) {
	s.post(ctx, "/api/locations", sample, "location")
}

// SendAppUsage delivers one app-usage event.
func (s *Sink) SendAppUsage(ctx context.Context, event domain.UsageEvent) {
	s.post(ctx, "/api/app-usage", event, "app usage")
}

// SendWebVisit delivers one web-visit event.
func (s *Sink) SendWebVisit(ctx context.Context, event domain.WebVisitEvent) {
	s.post(ctx, "/api/web-history", event, "web visit")
}

func (s *Sink) post(ctx context.Context, path string, body any, kind string) {
	if err := s.client.do(ctx, http.MethodPost, path, body, nil, false); err != nil {
		s.logger.Warn("event delivery failed, dropping",
			zap.String("kind", kind),
			zap.Error(err))
		return
	}
	s.logger.Debug("event delivered", zap.String("kind", kind))
}
