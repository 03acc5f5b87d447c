package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/notify"
)

func (s *Server) registerNotificationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getNotificationSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications/settings",
		Summary:     "Get notification settings",
		Description: "Returns the current user's notification preferences",
		Tags:        []string{"Notifications"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetNotificationSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateNotificationSettings",
		Method:      http.MethodPatch,
		Path:        "/api/v1/notifications/settings",
		Summary:     "Update notification settings",
		Description: "Changes the supplied notification preferences",
		Tags:        []string{"Notifications"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateNotificationSettings)
}

func (s *Server) registerIntentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listIntents",
		Method:      http.MethodGet,
		Path:        "/api/v1/intents",
		Summary:     "List pending intents",
		Description: "Returns the current user's pending navigation intents, oldest first",
		Tags:        []string{"Notifications"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListIntents)

	huma.Register(s.api, huma.Operation{
		OperationID: "drainIntents",
		Method:      http.MethodPost,
		Path:        "/api/v1/intents/drain",
		Summary:     "Drain pending intents",
		Description: "Returns and removes the current user's pending navigation intents",
		Tags:        []string{"Notifications"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDrainIntents)
}

// SettingsOutput wraps notification settings for Huma.
type SettingsOutput struct {
	Body notify.Settings
}

// UpdateSettingsInput carries a partial settings change.
type UpdateSettingsInput struct {
	Body notify.SettingsUpdate
}

// IntentsResponse lists intents.
type IntentsResponse struct {
	Intents []intent.Intent `json:"intents" doc:"Pending intents, oldest first"`
}

// IntentsOutput wraps intents for Huma.
type IntentsOutput struct {
	Body IntentsResponse
}

func (s *Server) handleGetNotificationSettings(ctx context.Context, _ *struct{}) (*SettingsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.services.Settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SettingsOutput{Body: settings}, nil
}

func (s *Server) handleUpdateNotificationSettings(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.services.Settings.Update(ctx, userID, input.Body)
	if err != nil {
		return nil, err
	}
	return &SettingsOutput{Body: settings}, nil
}

func (s *Server) handleListIntents(ctx context.Context, _ *struct{}) (*IntentsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.services.Intents.Pending(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &IntentsOutput{Body: IntentsResponse{Intents: nonNilIntents(pending)}}, nil
}

func (s *Server) handleDrainIntents(ctx context.Context, _ *struct{}) (*IntentsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	drained, err := s.services.Intents.Drain(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &IntentsOutput{Body: IntentsResponse{Intents: nonNilIntents(drained)}}, nil
}

func nonNilIntents(in []intent.Intent) []intent.Intent {
	if in == nil {
		return []intent.Intent{}
	}
	return in
}
