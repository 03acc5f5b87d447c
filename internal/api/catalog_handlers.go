package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pokepi/pokepi-server/internal/catalog"
	"github.com/pokepi/pokepi-server/internal/domain"
)

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getFeed",
		Method:      http.MethodGet,
		Path:        "/api/v1/feed",
		Summary:     "Get feed page",
		Description: "Returns one page of the catalog feed. Page 0 refreshes from the remote source; cached items are served when it is unavailable.",
		Tags:        []string{"Catalog"},
	}, s.handleGetFeed)

	huma.Register(s.api, huma.Operation{
		OperationID: "getItem",
		Method:      http.MethodGet,
		Path:        "/api/v1/items/{id}",
		Summary:     "Get item",
		Description: "Returns an item's details and counts the view",
		Tags:        []string{"Catalog"},
	}, s.handleGetItem)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchItems",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search items",
		Description: "Searches the catalog by name substring or type name",
		Tags:        []string{"Catalog"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "listTypes",
		Method:      http.MethodGet,
		Path:        "/api/v1/types",
		Summary:     "List types",
		Description: "Returns the canonical type names available for type search",
		Tags:        []string{"Catalog"},
	}, s.handleListTypes)
}

// === DTOs ===

// PageInput selects a zero-based page.
type PageInput struct {
	Page int `query:"page" default:"0" minimum:"0" maximum:"100000" doc:"Zero-based page index"`
}

// ItemPage is one page of items in API responses.
type ItemPage struct {
	Items    []domain.Pokemon `json:"items" doc:"Items on this page"`
	Page     int              `json:"page" doc:"Zero-based page index"`
	PrevPage *int             `json:"prev_page,omitempty" doc:"Previous page index, absent on the first page"`
	NextPage *int             `json:"next_page,omitempty" doc:"Next page index, absent when exhausted"`
	HasMore  bool             `json:"has_more" doc:"Whether a following page exists"`
}

// ItemPageOutput wraps an item page for Huma.
type ItemPageOutput struct {
	Body ItemPage
}

// ItemIDInput identifies one item.
type ItemIDInput struct {
	ID int `path:"id" minimum:"1" doc:"Item ID"`
}

// ItemOutput wraps one item for Huma.
type ItemOutput struct {
	Body *domain.Pokemon
}

// SearchInput contains search parameters.
type SearchInput struct {
	Query string `query:"q" required:"true" minLength:"1" maxLength:"100" doc:"Name substring or type name"`
	By    string `query:"by" enum:"name,type" default:"name" doc:"Search by name or type"`
	Page  int    `query:"page" default:"0" minimum:"0" maximum:"100000" doc:"Zero-based page index"`
}

// TypesResponse lists type names.
type TypesResponse struct {
	Types []string `json:"types" doc:"Type names, sorted"`
}

// TypesOutput wraps the type list for Huma.
type TypesOutput struct {
	Body TypesResponse
}

// === Handlers ===

func (s *Server) handleGetFeed(ctx context.Context, input *PageInput) (*ItemPageOutput, error) {
	page, err := s.services.Catalog.FeedPage(ctx, getUserID(ctx), input.Page)
	if err != nil {
		return nil, err
	}
	return &ItemPageOutput{Body: toItemPage(input.Page, page)}, nil
}

func (s *Server) handleGetItem(ctx context.Context, input *ItemIDInput) (*ItemOutput, error) {
	item, err := s.services.Catalog.GetItemDetails(ctx, input.ID, getUserID(ctx))
	if err != nil {
		return nil, err
	}
	return &ItemOutput{Body: item}, nil
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*ItemPageOutput, error) {
	page, err := s.services.Catalog.Search(ctx, getUserID(ctx), input.Query, catalog.SearchBy(input.By), input.Page)
	if err != nil {
		return nil, err
	}
	return &ItemPageOutput{Body: toItemPage(input.Page, page)}, nil
}

func (s *Server) handleListTypes(ctx context.Context, _ *struct{}) (*TypesOutput, error) {
	types, err := s.services.Catalog.AllTypes(ctx)
	if err != nil {
		return nil, err
	}
	if types == nil {
		types = []string{}
	}
	return &TypesOutput{Body: TypesResponse{Types: types}}, nil
}

func toItemPage(index int, page domain.Page[domain.Pokemon]) ItemPage {
	items := page.Items
	if items == nil {
		items = []domain.Pokemon{}
	}
	return ItemPage{
		Items:    items,
		Page:     index,
		PrevPage: page.PrevKey,
		NextPage: page.NextKey,
		HasMore:  page.HasMore(),
	}
}
