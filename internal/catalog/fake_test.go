package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/store/sqlite"
)

const testBaseURL = "https://pokeapi.test/api/v2/"

// fakeRemote is an in-memory RemoteSource.
type fakeRemote struct {
	mu    sync.Mutex
	items map[int]domain.Pokemon

	failList    bool
	failTypes   bool
	failDetails map[int]bool
	// gate, if set, blocks listings until closed.
	gate chan struct{}

	listCalls   int
	listOffsets []int
	detailCalls int
	detailIDs   []int
	typeCalls   int
}

func newFakeRemote(items ...domain.Pokemon) *fakeRemote {
	r := &fakeRemote{items: make(map[int]domain.Pokemon), failDetails: make(map[int]bool)}
	for _, p := range items {
		r.items[p.ID] = p
	}
	return r
}

func (r *fakeRemote) put(p domain.Pokemon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = p
}

func (r *fakeRemote) ids() []int {
	ids := make([]int, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func ref(kind string, id int, name string) domain.NamedResource {
	return domain.NamedResource{Name: name, URL: testBaseURL + kind + "/" + strconv.Itoa(id) + "/"}
}

func (r *fakeRemote) waitGate(ctx context.Context) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRemote) ListPokemon(ctx context.Context, limit, offset int) (*domain.ListPage, error) {
	r.mu.Lock()
	r.listCalls++
	r.listOffsets = append(r.listOffsets, offset)
	fail := r.failList
	r.mu.Unlock()

	if err := r.waitGate(ctx); err != nil {
		return nil, err
	}
	if fail {
		return nil, &pokeapi.Error{Op: "listPokemon", Err: pokeapi.ErrServer}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.ids()
	page := &domain.ListPage{Count: len(ids), Results: []domain.NamedResource{}}
	if offset >= len(ids) {
		return page, nil
	}
	end := min(offset+limit, len(ids))
	for _, id := range ids[offset:end] {
		page.Results = append(page.Results, ref("pokemon", id, r.items[id].Name))
	}
	if end < len(ids) {
		next := fmt.Sprintf("%spokemon?offset=%d&limit=%d", testBaseURL, end, limit)
		page.Next = &next
	}
	return page, nil
}

func (r *fakeRemote) GetPokemon(ctx context.Context, id int) (*domain.Pokemon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detailCalls++
	r.detailIDs = append(r.detailIDs, id)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.failDetails[id] {
		return nil, &pokeapi.Error{Op: "getPokemon", Resource: strconv.Itoa(id), Err: pokeapi.ErrServer}
	}
	p, ok := r.items[id]
	if !ok {
		return nil, &pokeapi.Error{Op: "getPokemon", Resource: strconv.Itoa(id), Err: pokeapi.ErrNotFound}
	}
	return &p, nil
}

func (r *fakeRemote) GetType(ctx context.Context, name string) (*domain.TypeCategory, error) {
	r.mu.Lock()
	r.typeCalls++
	fail := r.failTypes
	r.mu.Unlock()

	if err := r.waitGate(ctx); err != nil {
		return nil, err
	}
	if fail {
		return nil, &pokeapi.Error{Op: "getType", Resource: name, Err: pokeapi.ErrServer}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cat := &domain.TypeCategory{Name: name}
	for _, id := range r.ids() {
		p := r.items[id]
		for _, t := range p.Types {
			if t.Type.Name == name {
				cat.Members = append(cat.Members, domain.TypeMember{Pokemon: ref("pokemon", id, p.Name), Slot: t.Slot})
			}
		}
	}
	if len(cat.Members) == 0 {
		return nil, &pokeapi.Error{Op: "getType", Resource: name, Err: pokeapi.ErrNotFound}
	}
	return cat, nil
}

func (r *fakeRemote) ListTypes(ctx context.Context) (*domain.ListPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTypes {
		return nil, &pokeapi.Error{Op: "listTypes", Err: pokeapi.ErrServer}
	}
	names := []string{"normal", "fire", "water", "grass", "stellar", "unknown", "shadow"}
	page := &domain.ListPage{Count: len(names)}
	for i, n := range names {
		page.Results = append(page.Results, ref("type", i+1, n))
	}
	return page, nil
}

func (r *fakeRemote) calls() (list, detail, types int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls, r.detailCalls, r.typeCalls
}

// fakeNotifier records favorite-added notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []domain.Pokemon
	err   error
}

func (n *fakeNotifier) FavoriteAdded(_ context.Context, _ string, item domain.Pokemon) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, item)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func pokemon(id int, name string, types ...string) domain.Pokemon {
	p := domain.Pokemon{
		ID:     id,
		Name:   name,
		Height: id,
		Weight: id * 10,
	}
	for i, t := range types {
		p.Types = append(p.Types, domain.TypeSlot{Slot: i + 1, Type: ref("type", i+1, t)})
	}
	return p
}

// catalogOf builds n items named item-<id>, typed normal.
func catalogOf(n int) []domain.Pokemon {
	out := make([]domain.Pokemon, 0, n)
	for id := 1; id <= n; id++ {
		out = append(out, pokemon(id, fmt.Sprintf("item-%d", id), "normal"))
	}
	return out
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PageSize:           20,
		BulkConcurrency:    4,
		SearchListingLimit: 1500,
	}
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRepository(t *testing.T, remote RemoteSource, notifier Notifier) (*Repository, *sqlite.Store) {
	t.Helper()
	s := newTestStore(t)
	repo := NewRepository(remote, s, notifier, testSyncConfig(), slog.New(slog.DiscardHandler))
	// Runs before the store closes.
	t.Cleanup(repo.Close)
	return repo, s
}

func seed(t *testing.T, s *sqlite.Store, items ...domain.Pokemon) {
	t.Helper()
	now := time.Now()
	for i := range items {
		if items[i].FirstSeenAt.IsZero() {
			items[i].FirstSeenAt = now
		}
	}
	require.NoError(t, s.UpsertPokemonBatch(context.Background(), items))
}

func itemIDs(items []domain.Pokemon) []int {
	ids := make([]int, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	return ids
}

func intRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}
