package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pokepi/pokepi-server/internal/domain"
)

func (s *Server) registerStatsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Get stats",
		Description: "Returns the aggregate catalog stats",
		Tags:        []string{"Stats"},
	}, s.handleGetStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "addTimeSpent",
		Method:      http.MethodPost,
		Path:        "/api/v1/stats/time",
		Summary:     "Add time spent",
		Description: "Adds browsing time to the aggregate stats and returns them",
		Tags:        []string{"Stats"},
	}, s.handleAddTimeSpent)
}

// StatsOutput wraps the stats for Huma.
type StatsOutput struct {
	Body *domain.CatalogStats
}

// AddTimeSpentInput carries a browsing time delta.
type AddTimeSpentInput struct {
	Body struct {
		DeltaMs int64 `json:"delta_ms" minimum:"0" doc:"Milliseconds to add"`
	}
}

func (s *Server) handleGetStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	st, err := s.services.Catalog.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: st}, nil
}

func (s *Server) handleAddTimeSpent(ctx context.Context, input *AddTimeSpentInput) (*StatsOutput, error) {
	if err := s.services.Catalog.AddTimeSpent(ctx, input.Body.DeltaMs); err != nil {
		return nil, err
	}
	return s.handleGetStats(ctx, nil)
}
