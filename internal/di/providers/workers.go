package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/logger"
	"github.com/pokepi/pokepi-server/internal/notify"
	"github.com/pokepi/pokepi-server/internal/session"
	"github.com/pokepi/pokepi-server/internal/sse"
)

// FeaturedJobHandle runs the item-of-the-day job.
type FeaturedJobHandle struct {
	*notify.FeaturedJob
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *FeaturedJobHandle) Shutdown() error {
	h.cancel()
	<-h.done
	return nil
}

// ProvideFeaturedJob provides and starts the item-of-the-day job.
func ProvideFeaturedJob(i do.Injector) (*FeaturedJobHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	repo := do.MustInvoke[*RepositoryHandle](i)
	settings := do.MustInvoke[*notify.SettingsStore](i)
	intents := do.MustInvoke[*intent.Queue](i)
	tokenStore := do.MustInvoke[*session.TokenStore](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	job := notify.NewFeaturedJob(repo.Repository, settings, intents, tokenStore, sseHandle.Manager, cfg.Featured, log.Component("featured"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Run(ctx)
	}()

	if cfg.Featured.Enabled {
		log.Info("Featured item job started", "interval", cfg.Featured.Interval)
	} else {
		log.Info("Featured item job disabled by configuration")
	}

	return &FeaturedJobHandle{FeaturedJob: job, cancel: cancel, done: done}, nil
}

// SessionWatcher publishes a session.changed event whenever the stored
// session signs in or out.
type SessionWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (w *SessionWatcher) Shutdown() error {
	w.cancel()
	<-w.done
	return nil
}

// ProvideSessionWatcher provides and starts the session watcher.
func ProvideSessionWatcher(i do.Injector) (*SessionWatcher, error) {
	log := do.MustInvoke[*logger.Logger](i)
	tokenStore := do.MustInvoke[*session.TokenStore](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		var (
			last  session.Snapshot
			first = true
		)
		err := tokenStore.Watch(ctx, func(snap session.Snapshot) {
			if !first && snap.SignedIn() == last.SignedIn() && snap.UserLogin == last.UserLogin {
				return
			}
			if !first {
				sseHandle.Emit(sse.NewSessionChangedEvent(snap.SignedIn(), snap.UserLogin))
			}
			first = false
			last = snap
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Session watcher stopped", "error", err)
		}
	}()

	log.Info("Session watcher started")

	return &SessionWatcher{cancel: cancel, done: done}, nil
}
