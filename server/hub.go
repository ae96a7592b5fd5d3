package server

import (
	"errors"
	"sync"

	"github.com/rawewhat/quera/crud"
	"github.com/rawewhat/quera/store"
)

// membership asks the hub to move a client onto the live query key, or
// off its current one when leave is set.
type membership struct {
	client *Client
	key    sessionKey
	leave  bool
}

var errNoCollection = errors.New("collection is required")

// Hub owns one Session per live query and routes clients to it.
type Hub struct {
	store    store.Client
	logger   crud.Logger
	sessions map[sessionKey]*Session
	mu       sync.RWMutex

	requests  chan membership
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(st store.Client, logger crud.Logger) *Hub {
	return &Hub{
		store:    st,
		logger:   logger,
		sessions: make(map[sessionKey]*Session),
		requests: make(chan membership, 64),
		done:     make(chan struct{}),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case req := <-h.requests:
			h.handle(req)
		case <-h.done:
			return
		}
	}
}

// handle runs every membership change on the hub goroutine, so a
// client's subscribes, unsubscribes and disconnect apply in the order it
// sent them. A client sits in at most one session.
func (h *Hub) handle(req membership) {
	var (
		s   *Session
		err error
	)
	if !req.leave {
		s, err = h.session(req.key)
	}

	if prev := req.client.swapSession(s); prev != nil && prev != s {
		prev.exit(req.client)
	}

	switch {
	case err != nil:
		req.client.sendError(err.Error())
	case s != nil:
		s.enter(req.client)
	}
}

// session returns the running session for key, starting one if needed.
func (h *Hub) session(key sessionKey) (*Session, error) {
	if key.collection == "" {
		return nil, errNoCollection
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[key]; ok {
		return s, nil
	}

	s := newSession(key)
	adapter, err := crud.New(h.store, key.collection,
		crud.WithFilter(key.filter),
		crud.WithLogger(h.logger),
		crud.WithOnChange(s.publish),
	)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("hub: subscribe rejected", "collection", key.collection, "filter", key.filter, "error", err.Error())
		}
		return nil, err
	}
	h.sessions[key] = s
	s.start(adapter)
	return s, nil
}

// GetSession returns the session for a live query, if active.
func (h *Hub) GetSession(collection, filter string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sessionKey{collection: collection, filter: filter}]
}

// Close stops the hub and every session, releasing their live bindings.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for key, s := range h.sessions {
			close(s.stop)
			<-s.done
			delete(h.sessions, key)
		}
	})
}
