package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"catalog": s.checkCatalog(ctx),
		"session": s.checkSession(ctx),
		"events":  s.checkEvents(),
	}

	overall := "healthy"
	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkCatalog reads the stats row from the catalog database.
func (s *Server) checkCatalog(ctx context.Context) ComponentHealth {
	if s.services == nil || s.services.Catalog == nil {
		return ComponentHealth{Status: "degraded", Message: "catalog not configured"}
	}

	start := time.Now()
	_, err := s.services.Catalog.Stats(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "catalog read failed",
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}

// checkSession reads the session keys from the key-value store.
func (s *Server) checkSession(ctx context.Context) ComponentHealth {
	if s.services == nil || s.services.Session == nil {
		return ComponentHealth{Status: "degraded", Message: "session store not configured"}
	}

	start := time.Now()
	_, err := s.services.Session.Snapshot(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "session store read failed",
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}

func (s *Server) checkEvents() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: "degraded", Message: "event stream not configured"}
	}
	return ComponentHealth{
		Status:  "healthy",
		Message: strconv.Itoa(s.sseManager.ClientCount()) + " connected clients",
	}
}
