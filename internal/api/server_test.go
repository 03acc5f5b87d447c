package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/pokepi/pokepi-server/internal/auth"
	"github.com/pokepi/pokepi-server/internal/catalog"
	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/notify"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/session"
	"github.com/pokepi/pokepi-server/internal/sse"
	"github.com/pokepi/pokepi-server/internal/store"
	"github.com/pokepi/pokepi-server/internal/store/sqlite"
)

const testBaseURL = "https://pokeapi.test/api/v2/"

// testEnvelope mirrors the response envelope for decoding in tests.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decode[T any](t *testing.T, body []byte) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

// stubRemote serves a fixed catalog.
type stubRemote struct {
	mu    sync.Mutex
	items map[int]domain.Pokemon
	down  bool
}

func newStubRemote(items ...domain.Pokemon) *stubRemote {
	r := &stubRemote{items: make(map[int]domain.Pokemon)}
	for _, p := range items {
		r.items[p.ID] = p
	}
	return r
}

func (r *stubRemote) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *stubRemote) ids() []int {
	ids := make([]int, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func resource(kind string, id int, name string) domain.NamedResource {
	return domain.NamedResource{Name: name, URL: testBaseURL + kind + "/" + strconv.Itoa(id) + "/"}
}

func (r *stubRemote) ListPokemon(_ context.Context, limit, offset int) (*domain.ListPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, &pokeapi.Error{Op: "listPokemon", Err: pokeapi.ErrServer}
	}
	ids := r.ids()
	page := &domain.ListPage{Count: len(ids), Results: []domain.NamedResource{}}
	if offset >= len(ids) {
		return page, nil
	}
	end := min(offset+limit, len(ids))
	for _, id := range ids[offset:end] {
		page.Results = append(page.Results, resource("pokemon", id, r.items[id].Name))
	}
	if end < len(ids) {
		next := fmt.Sprintf("%spokemon?offset=%d&limit=%d", testBaseURL, end, limit)
		page.Next = &next
	}
	return page, nil
}

func (r *stubRemote) GetPokemon(_ context.Context, id int) (*domain.Pokemon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, &pokeapi.Error{Op: "getPokemon", Resource: strconv.Itoa(id), Err: pokeapi.ErrServer}
	}
	p, ok := r.items[id]
	if !ok {
		return nil, &pokeapi.Error{Op: "getPokemon", Resource: strconv.Itoa(id), Err: pokeapi.ErrNotFound}
	}
	return &p, nil
}

func (r *stubRemote) GetType(_ context.Context, name string) (*domain.TypeCategory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, &pokeapi.Error{Op: "getType", Resource: name, Err: pokeapi.ErrServer}
	}
	cat := &domain.TypeCategory{Name: name}
	for _, id := range r.ids() {
		p := r.items[id]
		for _, slot := range p.Types {
			if slot.Type.Name == name {
				cat.Members = append(cat.Members, domain.TypeMember{Pokemon: resource("pokemon", id, p.Name), Slot: slot.Slot})
			}
		}
	}
	if len(cat.Members) == 0 {
		return nil, &pokeapi.Error{Op: "getType", Resource: name, Err: pokeapi.ErrNotFound}
	}
	return cat, nil
}

func (r *stubRemote) ListTypes(context.Context) (*domain.ListPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, &pokeapi.Error{Op: "listTypes", Err: pokeapi.ErrServer}
	}
	page := &domain.ListPage{}
	for i, name := range []string{"fire", "grass", "water", "shadow"} {
		page.Results = append(page.Results, resource("type", i+1, name))
	}
	page.Count = len(page.Results)
	return page, nil
}

func mon(id int, name string, types ...string) domain.Pokemon {
	p := domain.Pokemon{ID: id, Name: name, Height: id, Weight: id * 10}
	for i, typeName := range types {
		p.Types = append(p.Types, domain.TypeSlot{Slot: i + 1, Type: resource("type", i+1, typeName)})
	}
	return p
}

// testServer wraps the API server for handler tests.
type testServer struct {
	*Server
	api        humatest.TestAPI
	remote     *stubRemote
	sseManager *sse.Manager
	intents    *intent.Queue
}

func setupTestServer(t *testing.T, items ...domain.Pokemon) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kv, err := store.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	key := make([]byte, auth.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	sseManager := sse.NewManager(logger)
	tokenStore := session.NewTokenStore(kv, logger)
	settings := notify.NewSettingsStore(kv)
	intents := intent.NewQueue(kv, logger)
	notifier := notify.NewNotifier(settings, intents, sseManager, logger)

	remote := newStubRemote(items...)
	repo := catalog.NewRepository(remote, db, notifier, config.SyncConfig{
		PageSize:           2,
		BulkConcurrency:    2,
		SearchListingLimit: 100,
	}, logger)
	// Registered after the stores, so it runs first.
	t.Cleanup(repo.Close)

	services := &Services{
		Catalog:  repo,
		Accounts: session.NewLocalAccounts(kv, tokens, tokenStore, logger),
		Session:  tokenStore,
		Settings: settings,
		Intents:  intents,
	}

	s := NewServer(services, sseManager, config.ServerConfig{
		Name:           "Test Server",
		AllowedOrigins: []string{"*"},
	}, logger)
	t.Cleanup(s.Close)

	return &testServer{
		Server:     s,
		api:        humatest.Wrap(t, s.API()),
		remote:     remote,
		sseManager: sseManager,
		intents:    intents,
	}
}

// signIn registers and logs in a local account, returning the bearer header.
func (ts *testServer) signIn(t *testing.T, username string) string {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"username": username,
		"password": "pikachu",
	})
	require.Equal(t, 200, resp.Code, "register failed: %s", resp.Body.String())

	resp = ts.api.Post("/api/v1/auth/login", map[string]any{
		"username": username,
		"password": "pikachu",
	})
	require.Equal(t, 200, resp.Code, "login failed: %s", resp.Body.String())

	env := decode[AuthResponse](t, resp.Body.Bytes())
	require.NotEmpty(t, env.Data.AccessToken)
	return "Authorization: Bearer " + env.Data.AccessToken
}
