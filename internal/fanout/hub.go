package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"auction-house/internal/metrics"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// sendBufferSize is the per-connection queue of outgoing frames. A client
// that falls this far behind starts losing price frames.
const sendBufferSize = 64

// Conn is one live connection as the registry sees it. The websocket pumps
// drain Send; tests read it directly.
type Conn struct {
	userID string
	send   chan []byte

	// seen holds the notification ids replayed on connect, plus those
	// delivered live while the replay was running, so that neither path
	// sends one twice.
	mu        sync.Mutex
	replaying bool
	seen      map[string]struct{}
}

// UserID returns the authenticated owner of the connection.
func (c *Conn) UserID() string { return c.userID }

// Send is the queue of frames waiting to be written to the socket. It is
// closed when the connection is unregistered.
func (c *Conn) Send() <-chan []byte { return c.send }

// event is what travels over the Bus: a ready-made frame plus its routing.
type event struct {
	AuctionID      string          `json:"auction_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	NotificationID string          `json:"notification_id,omitempty"`
	Frame          json.RawMessage `json:"frame"`
}

// Hub is the connection registry. It maps auction ids to subscribed
// connections and user ids to their connections. Registry mutations and
// deliveries share one RWMutex; no send ever blocks while holding it.
type Hub struct {
	mu        sync.RWMutex
	byAuction map[string]map[*Conn]struct{}
	byUser    map[string]map[*Conn]struct{}
	subs      map[*Conn]map[string]struct{}

	notifications repository.NotificationDB
	bus           Bus
	now           func() time.Time
}

// NewHub creates a hub that persists notifications in store. With a nil bus
// events are delivered in-process and synchronously; with a bus every
// instance delivers to its own connections from Run.
func NewHub(store repository.NotificationDB, bus Bus) *Hub {
	return &Hub{
		byAuction:     make(map[string]map[*Conn]struct{}),
		byUser:        make(map[string]map[*Conn]struct{}),
		subs:          make(map[*Conn]map[string]struct{}),
		notifications: store,
		bus:           bus,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a connection for userID and replays every notification the
// user has not received yet.
func (h *Hub) Register(ctx context.Context, userID string) *Conn {
	c := &Conn{
		userID:    userID,
		send:      make(chan []byte, sendBufferSize),
		replaying: true,
		seen:      make(map[string]struct{}),
	}

	h.mu.Lock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Conn]struct{})
	}
	h.byUser[userID][c] = struct{}{}
	h.subs[c] = make(map[string]struct{})
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	h.replay(ctx, c)
	return c
}

func (h *Hub) replay(ctx context.Context, c *Conn) {
	pending, err := h.notifications.ListUndelivered(ctx, c.userID)
	if err != nil {
		utils.Warn("fanout: failed to load undelivered notifications", map[string]any{"user_id": c.userID, "error": err.Error()})
		return
	}
	defer func() {
		c.mu.Lock()
		c.replaying = false
		c.mu.Unlock()
	}()

	for _, n := range pending {
		frame, err := Encode(Notification{Notification: n})
		if err != nil {
			continue
		}
		h.mu.RLock()
		_, live := h.subs[c]
		delivered := live && h.offerNotificationLocked(c, n.NotificationID, frame, true)
		h.mu.RUnlock()
		if delivered {
			h.markDelivered(ctx, n.NotificationID)
		}
	}
}

// Unregister removes c from every registry and closes its queue. Calling it
// twice is harmless.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	auctions, ok := h.subs[c]
	if !ok {
		return
	}
	for auctionID := range auctions {
		h.removeSubscriber(auctionID, c)
	}
	delete(h.subs, c)

	if conns := h.byUser[c.userID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
	metrics.LiveConnections.Dec()
}

// Subscribe adds c to auctionID's price stream.
func (h *Hub) Subscribe(c *Conn, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[c]; !ok {
		return
	}
	if h.byAuction[auctionID] == nil {
		h.byAuction[auctionID] = make(map[*Conn]struct{})
	}
	h.byAuction[auctionID][c] = struct{}{}
	h.subs[c][auctionID] = struct{}{}
}

// Unsubscribe removes c from auctionID's price stream.
func (h *Hub) Unsubscribe(c *Conn, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if auctions, ok := h.subs[c]; ok {
		delete(auctions, auctionID)
	}
	h.removeSubscriber(auctionID, c)
}

// removeSubscriber requires h.mu held for writing.
func (h *Hub) removeSubscriber(auctionID string, c *Conn) {
	if conns := h.byAuction[auctionID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byAuction, auctionID)
		}
	}
}

// Subscribers returns the number of connections watching auctionID.
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byAuction[auctionID])
}

// HandleFrame applies one client frame and returns the reply to send back.
func (h *Hub) HandleFrame(c *Conn, data []byte) Message {
	m, err := Decode(data)
	if err != nil {
		return ErrorMessage{Message: err.Error()}
	}

	switch req := m.(type) {
	case Subscribe:
		if req.AuctionID == "" {
			return ErrorMessage{Message: "auction_id is required"}
		}
		h.Subscribe(c, req.AuctionID)
		return Ack{Action: TypeSubscribe, AuctionID: req.AuctionID}
	case Unsubscribe:
		if req.AuctionID == "" {
			return ErrorMessage{Message: "auction_id is required"}
		}
		h.Unsubscribe(c, req.AuctionID)
		return Ack{Action: TypeUnsubscribe, AuctionID: req.AuctionID}
	default:
		return ErrorMessage{Message: fmt.Sprintf("%s frames are sent by the server only", m.messageType())}
	}
}

// PublishPrice broadcasts a new current price to auctionID's subscribers.
func (h *Hub) PublishPrice(ctx context.Context, auctionID string, price float64) {
	h.publishToAuction(ctx, auctionID, PriceUpdate{AuctionID: auctionID, CurrentPrice: price, At: h.now()})
}

// PublishStatus broadcasts a lifecycle transition to auctionID's subscribers.
func (h *Hub) PublishStatus(ctx context.Context, auctionID string, status model.AuctionStatus) {
	h.publishToAuction(ctx, auctionID, StatusUpdate{AuctionID: auctionID, Status: status, At: h.now()})
}

func (h *Hub) publishToAuction(ctx context.Context, auctionID string, m Message) {
	frame, err := Encode(m)
	if err != nil {
		utils.Error("fanout: failed to encode auction event", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	h.publish(ctx, event{AuctionID: auctionID, Frame: frame})
}

// NotifyUser persists a personal notification and pushes it to the user's
// live connections. An offline user receives it on the next connect.
func (h *Hub) NotifyUser(ctx context.Context, userID, auctionID, message string) error {
	n := model.Notification{
		NotificationID: utils.GenerateID(),
		UserID:         userID,
		AuctionID:      auctionID,
		Message:        message,
		CreatedAt:      h.now(),
	}
	if err := h.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("fanout: persist notification for %s: %w", userID, err)
	}

	frame, err := Encode(Notification{Notification: n})
	if err != nil {
		return err
	}
	h.publish(ctx, event{UserID: userID, NotificationID: n.NotificationID, Frame: frame})
	return nil
}

func (h *Hub) publish(ctx context.Context, ev event) {
	if h.bus == nil {
		h.deliver(ctx, ev)
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		utils.Error("fanout: failed to encode bus event", map[string]any{"error": err.Error()})
		return
	}
	if err := h.bus.Publish(ctx, data); err != nil {
		utils.Warn("fanout: bus publish failed, delivering locally", map[string]any{"error": err.Error()})
		h.deliver(ctx, ev)
	}
}

// deliver hands ev to the matching local connections.
func (h *Hub) deliver(ctx context.Context, ev event) {
	if ev.UserID != "" {
		if h.sendToUser(ev.UserID, ev.NotificationID, ev.Frame) && ev.NotificationID != "" {
			h.markDelivered(ctx, ev.NotificationID)
		}
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byAuction[ev.AuctionID] {
		h.offerLocked(c, ev.Frame)
	}
}

func (h *Hub) sendToUser(userID, notificationID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for c := range h.byUser[userID] {
		if h.offerNotificationLocked(c, notificationID, frame, false) {
			delivered = true
		}
	}
	return delivered
}

// offerNotificationLocked queues a notification frame on c unless c already
// has it. It reports whether c has the notification afterwards. Requires h.mu
// held.
func (h *Hub) offerNotificationLocked(c *Conn, id string, frame []byte, fromReplay bool) bool {
	if id == "" {
		return h.offerLocked(c, frame)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[id]; dup {
		return true
	}
	if !h.offerLocked(c, frame) {
		return false
	}
	if fromReplay || c.replaying {
		c.seen[id] = struct{}{}
	}
	return true
}

// offer queues frame on c unless c is gone or its queue is full.
func (h *Hub) offer(c *Conn, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subs[c]; !ok {
		return false
	}
	return h.offerLocked(c, frame)
}

// offerLocked requires h.mu held; Unregister closes queues only under the
// write lock.
func (h *Hub) offerLocked(c *Conn, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		metrics.DroppedMessagesTotal.Inc()
		utils.Warn("fanout: dropping frame for slow client", map[string]any{"user_id": c.userID})
		return false
	}
}

func (h *Hub) markDelivered(ctx context.Context, notificationID string) {
	if err := h.notifications.MarkDelivered(ctx, notificationID); err != nil {
		utils.Warn("fanout: failed to mark notification delivered", map[string]any{"notification_id": notificationID, "error": err.Error()})
	}
}

// Run consumes the bus until ctx is cancelled, then closes every connection.
// Without a bus it only waits for cancellation.
func (h *Hub) Run(ctx context.Context) error {
	var events <-chan []byte
	if h.bus != nil {
		ch, err := h.bus.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("fanout: subscribe to bus: %w", err)
		}
		events = ch
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case data, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}
			var ev event
			if err := json.Unmarshal(data, &ev); err != nil {
				utils.Warn("fanout: discarding malformed bus event", map[string]any{"error": err.Error()})
				continue
			}
			h.deliver(ctx, ev)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.subs))
	for c := range h.subs {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.Unregister(c)
	}
}
