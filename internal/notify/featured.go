package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/sse"
)

// ItemLoader loads one catalog item, fetching it when it is not cached.
type ItemLoader interface {
	GetItemDetails(ctx context.Context, id int, userID string) (*domain.Pokemon, error)
}

// SessionSource reports the signed-in user, if any.
type SessionSource interface {
	CurrentUser(ctx context.Context) (string, bool)
}

// FeaturedJob periodically announces a random item of the day.
type FeaturedJob struct {
	items    ItemLoader
	settings *SettingsStore
	intents  *intent.Queue
	session  SessionSource
	events   Emitter
	cfg      config.FeaturedConfig
	logger   *slog.Logger
	pick     func(n int) int
}

// NewFeaturedJob creates the item-of-the-day job. session may be nil.
func NewFeaturedJob(items ItemLoader, settings *SettingsStore, intents *intent.Queue, session SessionSource, events Emitter, cfg config.FeaturedConfig, logger *slog.Logger) *FeaturedJob {
	if cfg.MaxID <= 0 {
		cfg.MaxID = 1010
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &FeaturedJob{
		items:    items,
		settings: settings,
		intents:  intents,
		session:  session,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		pick:     rand.IntN,
	}
}

// Run announces an item immediately and then once per interval until ctx is
// done. A failed run is retried on the next tick.
func (j *FeaturedJob) Run(ctx context.Context) {
	if !j.cfg.Enabled {
		j.logger.Info("featured item job disabled")
		return
	}

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("featured item run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce picks an item and announces it. It returns nil, nil when the
// installation has the item of the day switched off.
func (j *FeaturedJob) RunOnce(ctx context.Context) (*domain.Pokemon, error) {
	var user string
	if j.session != nil {
		user, _ = j.session.CurrentUser(ctx)
	}

	settings, err := j.settings.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	if !settings.AllowsItemOfTheDay() {
		j.logger.Debug("item of the day disabled, skipping run")
		return nil, nil
	}

	itemID := j.pick(j.cfg.MaxID) + 1
	item, err := j.items.GetItemDetails(ctx, itemID, "")
	if err != nil {
		return nil, fmt.Errorf("load featured item %d: %w", itemID, err)
	}

	data := sse.ItemEventData{
		ItemID:   item.ID,
		Title:    DisplayName(item.Name),
		Types:    displayTypes(*item),
		ImageURL: item.ArtworkURL(),
	}
	data.Message = fmt.Sprintf("%s is waiting for you! A %s type ready to be discovered.",
		data.Title, strings.Join(data.Types, ", "))

	if user != "" {
		in, err := j.intents.Enqueue(ctx, user, intent.KindDetail, item.ID)
		if err != nil {
			j.logger.Warn("failed to queue featured intent", "user_id", user, "error", err)
		} else {
			data.IntentID = in.ID
		}
	}

	j.events.Emit(sse.NewItemFeaturedEvent(data))
	j.logger.Info("featured item announced", "pokemon_id", item.ID, "name", item.Name)
	return item, nil
}
