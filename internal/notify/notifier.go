package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/sse"
)

// Emitter publishes events to connected clients.
type Emitter interface {
	Emit(event sse.Event)
	EmitToUser(userID string, event sse.Event)
}

// Notifier sends the favorite-added notification. It satisfies the catalog
// package's Notifier interface.
type Notifier struct {
	settings *SettingsStore
	intents  *intent.Queue
	events   Emitter
	logger   *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(settings *SettingsStore, intents *intent.Queue, events Emitter, logger *slog.Logger) *Notifier {
	return &Notifier{settings: settings, intents: intents, events: events, logger: logger}
}

// FavoriteAdded queues a favorites intent for userID and publishes the
// notification to their clients, unless they switched favorite updates off.
func (n *Notifier) FavoriteAdded(ctx context.Context, userID string, item domain.Pokemon) error {
	settings, err := n.settings.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !settings.AllowsFavoriteUpdates() {
		n.logger.Debug("favorite notifications disabled", "user_id", userID)
		return nil
	}

	in, err := n.intents.Enqueue(ctx, userID, intent.KindFavorites, item.ID)
	if err != nil {
		return fmt.Errorf("queue favorites intent: %w", err)
	}

	title := DisplayName(item.Name)
	n.events.EmitToUser(userID, sse.NewFavoriteAddedEvent(sse.ItemEventData{
		ItemID:   item.ID,
		Title:    title,
		Types:    displayTypes(item),
		ImageURL: item.ArtworkURL(),
		Message:  fmt.Sprintf("You added %s to your favorites!", title),
		IntentID: in.ID,
	}))

	n.logger.Info("favorite notification sent", "user_id", userID, "pokemon_id", item.ID)
	return nil
}

// DisplayName title-cases a catalog name: "mr-mime" becomes "Mr-Mime".
func DisplayName(name string) string {
	// Casers keep state; a fresh one per call is safe for concurrent use.
	return cases.Title(language.English).String(strings.TrimSpace(name))
}

func displayTypes(item domain.Pokemon) []string {
	names := item.TypeNames()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = DisplayName(n)
	}
	return out
}
