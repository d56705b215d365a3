package broker

import (
	"log/slog"

	"github.com/telemq/telemq/internal/metrics"
	"github.com/telemq/telemq/internal/sessionstore"
	"github.com/telemq/telemq/internal/topic"
)

// Router is the single-task control plane described in spec.md §4.3. It
// owns the subscription tree and the retained-message table exclusively;
// every mutation of either happens on Router.Run's goroutine, so no lock
// beyond the channel itself is needed for them.
type Router struct {
	commands chan Command
	store    sessionstore.Store
	log      *slog.Logger

	tree      *topic.Tree
	retained  *retainedTable
	outboxes  map[string]Outbox
	connected map[string]bool

	shuttingDown bool
	shutdownDone chan struct{}

	metrics           *metrics.Metrics
	subscriptionCount int
}

// NewRouter creates a router. Run must be called (typically in its own
// goroutine) to start processing commands.
func NewRouter(store sessionstore.Store, log *slog.Logger) *Router {
	return &Router{
		commands:  make(chan Command, 256),
		store:     store,
		log:       log,
		tree:      topic.NewTree(),
		retained:  newRetainedTable(),
		outboxes:  make(map[string]Outbox),
		connected: make(map[string]bool),
	}
}

// Commands returns the channel sessions and listeners send Commands on.
func (r *Router) Commands() chan<- Command { return r.commands }

// SetMetrics wires a counter set that Run updates as it processes
// commands (internal/metrics, SPEC_FULL.md §2's domain stack). Nil is the
// default and disables all metrics updates.
func (r *Router) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// Run processes commands in strict FIFO order until a ShutDown command has
// been handled and every connection has finished disconnecting. It is the
// router's only goroutine; it must never block on a send to a session
// outbox (spec.md §5), which is guaranteed because every outbox send is
// non-blocking and drops the message when the outbox is full.
func (r *Router) Run() {
	for cmd := range r.commands {
		r.handle(cmd)
		if r.shuttingDown && len(r.outboxes) == 0 {
			close(r.shutdownDone)
			return
		}
	}
}

func (r *Router) handle(cmd Command) {
	switch c := cmd.(type) {
	case ClientConnected:
		r.handleClientConnected(c)
	case AddSubscriptions:
		r.handleAddSubscriptions(c)
	case RemoveSubscriptions:
		r.handleRemoveSubscriptions(c)
	case Publish:
		r.handlePublish(c)
	case ClientDisconnected:
		r.handleClientDisconnected(c)
	case ShutDown:
		r.handleShutDown(c)
	default:
		r.log.Warn("router received unknown command type")
	}
}

// handleShutDown commits the Session Store and tells every connected
// session to disconnect; Run exits once the last one has done so (spec.md
// §4.3 ShutDown: "when all finish disconnecting, exit").
func (r *Router) handleShutDown(c ShutDown) {
	r.shuttingDown = true
	r.shutdownDone = c.Done

	if r.store != nil {
		if err := r.store.Commit(); err != nil {
			r.log.Error("session store commit failed during shutdown", "error", err)
		}
	}

	for _, outbox := range r.outboxes {
		select {
		case outbox <- OutboxShutDown{}:
		default:
		}
	}
}

// handleClientConnected implements spec.md §9's open-question resolution:
// the router is the sole authority on "is this client id still connected
// to me". A new ClientConnected unconditionally displaces whatever outbox
// was previously registered for the client id, sending it OutboxDisconnect
// so the displaced session exits without publishing its will.
func (r *Router) handleClientConnected(c ClientConnected) {
	if old, ok := r.outboxes[c.ClientID]; ok {
		select {
		case old <- OutboxDisconnect{}:
		default:
		}
	}
	r.outboxes[c.ClientID] = c.Outbox
	r.connected[c.ClientID] = true

	if c.CleanSession {
		r.tree.RemoveClient(c.ClientID)
	}

	if r.metrics != nil {
		r.metrics.ClientsOnline.Set(float64(len(r.connected)))
	}
}

func (r *Router) handleAddSubscriptions(c AddSubscriptions) {
	outbox, ok := r.outboxes[c.ClientID]
	if !ok {
		return
	}
	for _, filter := range c.Filters {
		if err := r.tree.Insert(filter, c.ClientID); err != nil {
			r.log.Warn("rejected subscription filter", "filter", filter, "error", err)
			continue
		}
		r.subscriptionCount++
		for _, msg := range r.retained.match(filter) {
			select {
			case outbox <- Deliver{Packet: msg, Filter: filter}:
			default:
				r.log.Warn("dropped retained replay, outbox full", "client_id", c.ClientID)
			}
		}
	}
	if r.metrics != nil {
		r.metrics.Subscriptions.Set(float64(r.subscriptionCount))
	}
}

func (r *Router) handleRemoveSubscriptions(c RemoveSubscriptions) {
	for _, filter := range c.Filters {
		r.tree.Remove(filter, c.ClientID)
		r.subscriptionCount--
	}
	if r.metrics != nil {
		r.metrics.Subscriptions.Set(float64(r.subscriptionCount))
	}
}

func (r *Router) handlePublish(c Publish) {
	if r.metrics != nil {
		r.metrics.MessagesIn.Inc()
	}

	if c.Packet.Retain {
		r.retained.set(c.Packet)
		if r.metrics != nil {
			r.metrics.RetainedCount.Set(float64(r.retained.count()))
		}
	}

	subscribers := r.tree.Find(c.Packet.Topic)
	for clientID := range subscribers {
		outbox, ok := r.outboxes[clientID]
		if !ok {
			if r.store != nil {
				_ = r.store.NewPublish(clientID, c.Packet)
			}
			continue
		}
		select {
		case outbox <- Deliver{Packet: c.Packet}:
			if r.metrics != nil {
				r.metrics.MessagesOut.Inc()
			}
		default:
			r.log.Warn("dropped publish, outbox full", "client_id", clientID)
		}
	}
}

// handleClientDisconnected only honors the disconnect if the reported
// Outbox still matches the currently-registered one for ClientID,
// resolving spec.md §9's displacement race: a stale disconnect arriving
// after a new CONNECT has already displaced it must not unregister the
// new connection.
func (r *Router) handleClientDisconnected(c ClientDisconnected) {
	current, ok := r.outboxes[c.ClientID]
	if !ok || current != c.Outbox {
		return
	}

	delete(r.outboxes, c.ClientID)
	delete(r.connected, c.ClientID)

	if c.CleanSession {
		r.tree.RemoveClient(c.ClientID)
	}

	if r.metrics != nil {
		r.metrics.ClientsOnline.Set(float64(len(r.connected)))
	}

	if c.WillPacket != nil {
		r.handlePublish(Publish{Packet: c.WillPacket})
	}
}
