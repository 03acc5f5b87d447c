package sse

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pokepi/pokepi-server/internal/id"
)

const (
	queueSize         = 256
	clientBufferSize  = 32
	heartbeatInterval = 30 * time.Second
)

// Client is one connected event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// UserID receives user-addressed events. Empty receives broadcasts only.
	UserID string

	dropped atomic.Int64
}

// offer delivers without blocking. A full buffer drops the event.
func (c *Client) offer(event Event) bool {
	select {
	case c.EventChan <- event:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Manager fans events out to connected clients. Events addressed to a user
// reach only that user's clients; everything else goes to every client.
type Manager struct {
	logger    *slog.Logger
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]*Client
	closing bool

	queue   chan Event
	running atomic.Bool
	stopped chan struct{}
}

// NewManager creates a Manager. Call Start to begin delivery.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		heartbeat: heartbeatInterval,
		clients:   make(map[string]*Client),
		byUser:    make(map[string]map[string]*Client),
		queue:     make(chan Event, queueSize),
		stopped:   make(chan struct{}),
	}
}

// Start delivers queued events and heartbeats until ctx is done or the
// manager shuts down. Only the first call does anything.
func (m *Manager) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	defer close(m.stopped)

	m.logger.Info("SSE manager starting")

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				m.closeAllClients()
				return
			}
			m.broadcast(event)

		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is already queued, and
// disconnects every client. It is safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	close(m.queue)
	m.mu.Unlock()

	if !m.running.Load() {
		for event := range m.queue {
			m.broadcast(event)
		}
		m.closeAllClients()
		return nil
	}

	select {
	case <-m.stopped:
	case <-ctx.Done():
		m.logger.Warn("SSE drain timed out, queued events dropped")
		m.closeAllClients()
	}

	m.logger.Info("SSE manager shutdown complete")
	return nil
}

// recipients returns the clients an event is addressed to. Callers hold mu.
func (m *Manager) recipients(event Event) iter.Seq[*Client] {
	if event.UserID != "" {
		return func(yield func(*Client) bool) {
			for _, c := range m.byUser[event.UserID] {
				if !yield(c) {
					return
				}
			}
		}
	}
	return func(yield func(*Client) bool) {
		for _, c := range m.clients {
			if !yield(c) {
				return
			}
		}
	}
}

func (m *Manager) broadcast(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var delivered, dropped int
	for c := range m.recipients(event) {
		if c.offer(event) {
			delivered++
			continue
		}
		dropped++
		m.logger.Warn("dropped event for slow client",
			slog.String("client_id", c.ID),
			slog.String("event_type", string(event.Type)),
			slog.Int64("dropped_total", c.dropped.Load()))
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event delivered",
			slog.String("event_type", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}
}

// Connect registers a client for userID. An empty userID is anonymous.
func (m *Manager) Connect(userID string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:          clientID,
		UserID:      userID,
		EventChan:   make(chan Event, clientBufferSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[c.ID] = c
	if userID != "" {
		if m.byUser[userID] == nil {
			m.byUser[userID] = make(map[string]*Client)
		}
		m.byUser[userID][c.ID] = c
	}
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("user_id", userID),
		slog.Int("total_clients", total))
	return c, nil
}

// Disconnect removes a client and closes its channels. Unknown IDs are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		m.remove(c)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}
	close(c.Done)
	close(c.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(c.ConnectedAt)),
		slog.Int("total_clients", total))
}

// remove drops c from both indexes. Callers hold mu for writing.
func (m *Manager) remove(c *Client) {
	delete(m.clients, c.ID)
	if c.UserID == "" {
		return
	}
	delete(m.byUser[c.UserID], c.ID)
	if len(m.byUser[c.UserID]) == 0 {
		delete(m.byUser, c.UserID)
	}
}

// Emit queues an event. Events emitted after Shutdown or while the queue is
// full are dropped.
func (m *Manager) Emit(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closing {
		return
	}

	select {
	case m.queue <- event:
	default:
		m.logger.Error("SSE queue full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

// EmitToUser queues an event for one user's clients.
func (m *Manager) EmitToUser(userID string, event Event) {
	event.UserID = userID
	m.Emit(event)
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		close(c.Done)
		close(c.EventChan)
	}
	clear(m.clients)
	clear(m.byUser)
}
