package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/store"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   domainerrors.Code
	}{
		{"domain not found", domainerrors.NotFoundf("item %d not found", 9), http.StatusNotFound, domainerrors.CodeNotFound},
		{"wrapped network", fmt.Errorf("feed: %w", domainerrors.Network(errors.New("dial"), "list feed page")), http.StatusBadGateway, domainerrors.CodeNetworkFailure},
		{"partial fetch", domainerrors.Wrap(&pokeapi.Error{Op: "getPokemon", Err: pokeapi.ErrServer}, domainerrors.CodePartialFetch, "every item failed"), http.StatusBadGateway, domainerrors.CodePartialFetch},
		{"store conflict", store.Exists("account:ash"), http.StatusConflict, domainerrors.CodeAlreadyExists},
		{"upstream 404", &pokeapi.Error{Op: "getPokemon", Err: pokeapi.ErrNotFound}, http.StatusNotFound, domainerrors.CodeNotFound},
		{"upstream 5xx", &pokeapi.Error{Op: "listPokemon", Err: pokeapi.ErrServer}, http.StatusBadGateway, domainerrors.CodeNetworkFailure},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, domainerrors.CodeNetworkFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.status, got.GetStatus())
			assert.Equal(t, string(tt.code), got.Code)
		})
	}

	assert.Nil(t, translate(errors.New("boom")))
}

func TestTranslate_StoreMessageHidesKey(t *testing.T) {
	got := translate(store.NotFound("session:token"))
	require.NotNil(t, got)
	assert.Equal(t, "Not Found", got.Message)
}
