package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	sendBuffer = 64
	pingPeriod = 30 * time.Second
)

// Conn is the transport of one subscriber.
type Conn interface {
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
	Close()
}

type subscriber struct {
	topics []string
	send   chan []byte
	conn   Conn
}

type publication struct {
	topic  string
	data   []byte
	retain bool
}

// Hub fans published messages out to the subscribers of each topic.
// A single goroutine (Run) owns all subscription state. Every subscriber has
// one FIFO send queue, so per-topic publish order is preserved; a subscriber
// whose queue overflows is dropped instead of skipping messages.
type Hub struct {
	topics   map[string]map[*subscriber]struct{}
	retained map[string][]byte

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan publication
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*subscriber]struct{}),
		retained:   make(map[string][]byte),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan publication, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and publications until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, subs := range h.topics {
				for s := range subs {
					h.drop(s)
				}
			}
			return

		case s := <-h.register:
			for _, t := range s.topics {
				if h.topics[t] == nil {
					h.topics[t] = make(map[*subscriber]struct{})
				}
				h.topics[t][s] = struct{}{}
			}
			for _, t := range s.topics {
				if data, ok := h.retained[t]; ok {
					h.deliver(s, data)
				}
			}

		case s := <-h.unregister:
			h.drop(s)

		case p := <-h.broadcast:
			if p.retain {
				h.retained[p.topic] = p.data
			}
			for s := range h.topics[p.topic] {
				h.deliver(s, p.data)
			}
		}
	}
}

func (h *Hub) deliver(s *subscriber, data []byte) {
	select {
	case s.send <- data:
	default:
		log.Warn().Strs("topics", s.topics).Msg("push: subscriber queue full, dropping connection")
		h.drop(s)
	}
}

// drop removes s from every topic and closes its queue. Safe to call twice.
func (h *Hub) drop(s *subscriber) {
	found := false
	for _, t := range s.topics {
		if subs, ok := h.topics[t]; ok {
			if _, ok := subs[s]; ok {
				found = true
				delete(subs, s)
			}
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
	if found {
		close(s.send)
	}
}

// Publish sends payload to every subscriber of topic.
func (h *Hub) Publish(topic, typ string, payload any) {
	h.publish(topic, typ, payload, false)
}

// Retain publishes like Publish and also replays the message to every
// later subscriber of topic until it is replaced.
func (h *Hub) Retain(topic, typ string, payload any) {
	h.publish(topic, typ, payload, true)
}

func (h *Hub) publish(topic, typ string, payload any, retain bool) {
	msg, err := NewMessage(topic, typ, payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("push: encode payload")
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("push: encode envelope")
		return
	}
	select {
	case h.broadcast <- publication{topic: topic, data: data, retain: retain}:
	case <-h.done:
	}
}

// Attach subscribes conn to topics and pumps messages until the connection
// fails or the hub drops it. It blocks for the lifetime of the connection.
func (h *Hub) Attach(conn Conn, topics ...string) {
	s := &subscriber{topics: topics, send: make(chan []byte, sendBuffer), conn: conn}
	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.writePump()

	// Incoming frames are not part of the protocol; reading only keeps
	// pong/close handling alive.
	for {
		if _, err := conn.Read(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- s:
	case <-h.done:
	}
	conn.Close()
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.Write(data); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				return
			}
		}
	}
}
