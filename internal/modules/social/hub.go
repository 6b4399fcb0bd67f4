package social

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	// writeWait bounds each outbound frame write.
	writeWait = 10 * time.Second

	// subscriberBuffer is the per-connection outbound queue. A subscriber
	// that falls this far behind is dropped rather than backpressuring the
	// whole map's feed.
	subscriberBuffer = 32
)

// subscriber is one live websocket connection on one map's feed.
type subscriber struct {
	mapID string
	out   chan interface{}
}

// Hub fans chat events out to live websocket subscribers, scoped per map.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	log         zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		log:         log.With().Str("component", "chat_hub").Logger(),
	}
}

// Broadcast queues a payload for every subscriber on a map. Slow subscribers
// are skipped; their connection is torn down by the serve loop.
func (h *Hub) Broadcast(mapID string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		if sub.mapID != mapID {
			continue
		}
		select {
		case sub.out <- payload:
		default:
			// Queue full. Close the channel path by dropping the send;
			// the serve loop will notice on its next write timeout.
			h.log.Warn().Str("map_id", mapID).Msg("Dropping frame for slow chat subscriber")
		}
	}
}

// SubscriberCount reports live connections, optionally filtered by map.
func (h *Hub) SubscriberCount(mapID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for sub := range h.subscribers {
		if mapID == "" || sub.mapID == mapID {
			n++
		}
	}
	return n
}

// Serve upgrades the request to a websocket and streams the map's feed until
// the client goes away or the request context ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, mapID string) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checking happens in the CORS layer
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	sub := &subscriber{mapID: mapID, out: make(chan interface{}, subscriberBuffer)}
	h.add(sub)
	defer h.remove(sub)

	ctx := r.Context()

	// Drain inbound frames so pings are answered and closes are noticed.
	// Chat posts go through the HTTP API, not the socket.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return ctx.Err()
		case <-readDone:
			return nil
		case payload := <-sub.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(writeCtx, conn, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("map_id", sub.mapID).Msg("Chat subscriber connected")
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	h.log.Debug().Str("map_id", sub.mapID).Msg("Chat subscriber disconnected")
}
