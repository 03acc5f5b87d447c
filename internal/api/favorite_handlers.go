package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerFavoriteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "toggleFavorite",
		Method:      http.MethodPost,
		Path:        "/api/v1/items/{id}/favorite",
		Summary:     "Toggle favorite",
		Description: "Flips the current user's favorite mark on an item and returns the new state",
		Tags:        []string{"Favorites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleToggleFavorite)

	huma.Register(s.api, huma.Operation{
		OperationID: "listFavorites",
		Method:      http.MethodGet,
		Path:        "/api/v1/favorites",
		Summary:     "List favorites",
		Description: "Returns the current user's cached favorites, newest first",
		Tags:        []string{"Favorites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListFavorites)
}

// FavoriteResponse reports an item's favorite state.
type FavoriteResponse struct {
	ItemID     int  `json:"item_id" doc:"Item ID"`
	IsFavorite bool `json:"is_favorite" doc:"Favorite state after the toggle"`
}

// FavoriteOutput wraps the favorite state for Huma.
type FavoriteOutput struct {
	Body FavoriteResponse
}

func (s *Server) handleToggleFavorite(ctx context.Context, input *ItemIDInput) (*FavoriteOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	on, err := s.services.Catalog.ToggleFavorite(ctx, input.ID, userID)
	if err != nil {
		return nil, err
	}
	return &FavoriteOutput{Body: FavoriteResponse{ItemID: input.ID, IsFavorite: on}}, nil
}

func (s *Server) handleListFavorites(ctx context.Context, input *PageInput) (*ItemPageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.services.Catalog.FavoritesPage(ctx, userID, input.Page)
	if err != nil {
		return nil, err
	}
	return &ItemPageOutput{Body: toItemPage(input.Page, page)}, nil
}
