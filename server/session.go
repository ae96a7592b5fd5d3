package server

import (
	"github.com/rawewhat/quera/crud"
)

// sessionKey identifies one live query: a collection and an optional filter.
type sessionKey struct {
	collection string
	filter     string
}

// Session fans one live binding out to every subscribed client.
// All client bookkeeping is serialized through a single goroutine.
type Session struct {
	key     sessionKey
	adapter *crud.Adapter
	clients map[*Client]bool

	updates chan []crud.Record
	join    chan *Client
	leave   chan *Client
	stop    chan struct{}
	done    chan struct{}
}

func newSession(key sessionKey) *Session {
	return &Session{
		key:     key,
		clients: make(map[*Client]bool),
		updates: make(chan []crud.Record, 64),
		join:    make(chan *Client, 16),
		leave:   make(chan *Client, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start attaches the live binding and runs the session loop. Snapshots
// delivered while the adapter was being built are dropped: joining
// clients are served from adapter.Records.
func (s *Session) start(adapter *crud.Adapter) {
	s.adapter = adapter
drain:
	for {
		select {
		case <-s.updates:
		default:
			break drain
		}
	}
	go s.Run()
}

// publish is the adapter's change hook. It may run on a store goroutine.
func (s *Session) publish(records []crud.Record) {
	select {
	case s.updates <- records:
	case <-s.stop:
	}
}

// Run is the session's main loop. It releases the live binding when the
// session is stopped.
func (s *Session) Run() {
	defer close(s.done)
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case records := <-s.updates:
			s.broadcast(records)
		case <-s.stop:
			s.adapter.Close()
			return
		}
	}
}

func (s *Session) enter(c *Client) {
	select {
	case s.join <- c:
	case <-s.stop:
	}
}

func (s *Session) exit(c *Client) {
	select {
	case s.leave <- c:
	case <-s.stop:
	}
}

func (s *Session) handleJoin(c *Client) {
	s.clients[c] = true
	c.sendMsg(s.snapshot(s.adapter.Records()))
}

func (s *Session) handleLeave(c *Client) {
	delete(s.clients, c)
}

func (s *Session) broadcast(records []crud.Record) {
	msg := s.snapshot(records)
	for c := range s.clients {
		c.sendMsg(msg)
	}
}

func (s *Session) snapshot(records []crud.Record) ServerMessage {
	if records == nil {
		records = []crud.Record{}
	}
	return ServerMessage{
		Type:       MsgSnapshot,
		Collection: s.key.collection,
		Filter:     s.key.filter,
		Records:    records,
	}
}
