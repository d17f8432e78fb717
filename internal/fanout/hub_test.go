package fanout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	model "auction-house/internal/models"
	"auction-house/internal/repository"

	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, c *Conn) Message {
	t.Helper()
	select {
	case frame, ok := <-c.Send():
		require.True(t, ok, "connection closed")
		m, err := Decode(frame)
		require.NoError(t, err)
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func requireNoFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case frame := <-c.Send():
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func TestHub_PriceOnlyReachesSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(repository.NewMemoryNotificationRepo(), nil)
	ctx := context.Background()

	watcher := hub.Register(ctx, "alice")
	other := hub.Register(ctx, "bob")
	idle := hub.Register(ctx, "carol")

	hub.Subscribe(watcher, "a1")
	hub.Subscribe(other, "a2")

	hub.PublishPrice(ctx, "a1", 120)

	m := recv(t, watcher)
	require.Equal(t, "a1", m.(PriceUpdate).AuctionID)
	require.Equal(t, 120.0, m.(PriceUpdate).CurrentPrice)
	requireNoFrame(t, other)
	requireNoFrame(t, idle)

	hub.Unsubscribe(watcher, "a1")
	hub.PublishPrice(ctx, "a1", 130)
	requireNoFrame(t, watcher)
	require.Zero(t, hub.Subscribers("a1"))
}

func TestHub_NotifyUser_LiveAndOffline(t *testing.T) {
	t.Parallel()

	store := repository.NewMemoryNotificationRepo()
	hub := NewHub(store, nil)
	ctx := context.Background()

	online := hub.Register(ctx, "alice")
	require.NoError(t, hub.NotifyUser(ctx, "alice", "a1", "you won"))

	m := recv(t, online)
	require.Equal(t, "you won", m.(Notification).Message)

	pending, err := store.ListUndelivered(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, pending, "live delivery marks the notification delivered")

	require.NoError(t, hub.NotifyUser(ctx, "bob", "a1", "auction ended"))
	require.NoError(t, hub.NotifyUser(ctx, "bob", "a2", "you were outbid"))

	pending, err = store.ListUndelivered(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	bob := hub.Register(ctx, "bob")
	require.Equal(t, "auction ended", recv(t, bob).(Notification).Message)
	require.Equal(t, "you were outbid", recv(t, bob).(Notification).Message)

	pending, err = store.ListUndelivered(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestHub_NoPriceReplay(t *testing.T) {
	t.Parallel()

	hub := NewHub(repository.NewMemoryNotificationRepo(), nil)
	ctx := context.Background()

	hub.PublishPrice(ctx, "a1", 99)
	late := hub.Register(ctx, "alice")
	hub.Subscribe(late, "a1")
	requireNoFrame(t, late)
}

func TestHub_HandleFrame(t *testing.T) {
	t.Parallel()

	hub := NewHub(repository.NewMemoryNotificationRepo(), nil)
	c := hub.Register(context.Background(), "alice")

	sub, err := Encode(Subscribe{AuctionID: "a1"})
	require.NoError(t, err)
	require.Equal(t, Ack{Action: TypeSubscribe, AuctionID: "a1"}, hub.HandleFrame(c, sub))
	require.Equal(t, 1, hub.Subscribers("a1"))

	unsub, err := Encode(Unsubscribe{AuctionID: "a1"})
	require.NoError(t, err)
	require.Equal(t, Ack{Action: TypeUnsubscribe, AuctionID: "a1"}, hub.HandleFrame(c, unsub))
	require.Zero(t, hub.Subscribers("a1"))

	serverOnly, err := Encode(PriceUpdate{AuctionID: "a1", CurrentPrice: 1})
	require.NoError(t, err)
	require.IsType(t, ErrorMessage{}, hub.HandleFrame(c, serverOnly))

	empty, err := Encode(Subscribe{})
	require.NoError(t, err)
	require.IsType(t, ErrorMessage{}, hub.HandleFrame(c, empty))

	require.IsType(t, ErrorMessage{}, hub.HandleFrame(c, []byte("garbage")))
}

func TestHub_UnregisterRemovesEverywhere(t *testing.T) {
	t.Parallel()

	hub := NewHub(repository.NewMemoryNotificationRepo(), nil)
	ctx := context.Background()
	c := hub.Register(ctx, "alice")
	hub.Subscribe(c, "a1")
	hub.Subscribe(c, "a2")

	hub.Unregister(c)
	hub.Unregister(c)

	require.Zero(t, hub.Subscribers("a1"))
	require.Zero(t, hub.Subscribers("a2"))
	_, open := <-c.Send()
	require.False(t, open)

	hub.PublishPrice(ctx, "a1", 10) // must not panic on the closed queue
	hub.Subscribe(c, "a3")
	require.Zero(t, hub.Subscribers("a3"), "a removed connection cannot resubscribe")
}

func TestHub_SlowClientDropsFrames(t *testing.T) {
	t.Parallel()

	hub := NewHub(repository.NewMemoryNotificationRepo(), nil)
	ctx := context.Background()
	slow := hub.Register(ctx, "alice")
	hub.Subscribe(slow, "a1")

	for i := 0; i < sendBufferSize+10; i++ {
		hub.PublishPrice(ctx, "a1", float64(i))
	}
	require.Len(t, slow.send, sendBufferSize)
}

func TestHub_ConcurrentRegistryMutation(t *testing.T) {
	t.Parallel()

	hub := NewHub(repository.NewMemoryNotificationRepo(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := hub.Register(ctx, fmt.Sprintf("user%d", i%5))
			auction := fmt.Sprintf("a%d", i%3)
			hub.Subscribe(c, auction)
			hub.PublishPrice(ctx, auction, float64(i))
			hub.PublishStatus(ctx, auction, model.StatusOpen)
			hub.Unregister(c)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		require.Zero(t, hub.Subscribers(fmt.Sprintf("a%d", i)))
	}
}

// chanBus is an in-process Bus used to exercise the Run loop.
type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(_ context.Context, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context) (<-chan []byte, error) {
	return b.ch, nil
}

func TestHub_RunDeliversBusEvents(t *testing.T) {
	t.Parallel()

	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(repository.NewMemoryNotificationRepo(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	c := hub.Register(ctx, "alice")
	hub.Subscribe(c, "a1")
	hub.PublishPrice(ctx, "a1", 55)

	require.Equal(t, 55.0, recv(t, c).(PriceUpdate).CurrentPrice)

	cancel()
	require.NoError(t, <-done)
	_, open := <-c.Send()
	require.False(t, open, "shutdown closes live connections")
}

// racingStore creates a notification for the connecting user while the
// replay query runs, and leaves delivered notifications unmarked so the
// replay still lists them.
type racingStore struct {
	*repository.MemoryNotificationRepo
	onList func()
}

func (s *racingStore) ListUndelivered(ctx context.Context, userID string) ([]model.Notification, error) {
	if s.onList != nil {
		s.onList()
		s.onList = nil
	}
	return s.MemoryNotificationRepo.ListUndelivered(ctx, userID)
}

func (s *racingStore) MarkDelivered(context.Context, string) error { return nil }

func TestHub_RegisterDoesNotDuplicateRacingNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &racingStore{MemoryNotificationRepo: repository.NewMemoryNotificationRepo()}
	hub := NewHub(store, nil)
	require.NoError(t, hub.NotifyUser(ctx, "bob", "a1", "offline while away"))
	store.onList = func() {
		require.NoError(t, hub.NotifyUser(ctx, "bob", "a2", "created during connect"))
	}

	c := hub.Register(ctx, "bob")

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		n, ok := recv(t, c).(Notification)
		require.True(t, ok)
		got[n.Message]++
	}
	requireNoFrame(t, c)
	require.Equal(t, map[string]int{"offline while away": 1, "created during connect": 1}, got)

	// A live copy of an already replayed notification is not sent again.
	pending, err := store.ListUndelivered(ctx, "bob")
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	frame, err := Encode(Notification{Notification: pending[0]})
	require.NoError(t, err)
	hub.deliver(ctx, event{UserID: "bob", NotificationID: pending[0].NotificationID, Frame: frame})
	requireNoFrame(t, c)
}
