package fanout

import (
	"context"
	"testing"
	"time"

	"auction-house/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	client, _ := setupTestRedis(t)
	bus := NewRedisBus(client, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, []byte(`{"auction_id":"a1"}`)))

	select {
	case payload := <-events:
		require.JSONEq(t, `{"auction_id":"a1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no payload received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-events
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

// Two hubs on one channel behave like two instances behind a load balancer:
// each delivers to the connections it holds, whichever one published.
func TestHub_CrossInstanceDelivery(t *testing.T) {
	client, mr := setupTestRedis(t)
	notifications := repository.NewMemoryNotificationRepo()

	publisher := NewHub(notifications, NewRedisBus(client, DefaultChannel))
	holder := NewHub(notifications, NewRedisBus(client, DefaultChannel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = publisher.Run(ctx) }()
	go func() { _ = holder.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	c := holder.Register(ctx, "bob")
	holder.Subscribe(c, "a1")

	publisher.PublishPrice(ctx, "a1", 120)
	price, ok := recv(t, c).(PriceUpdate)
	require.True(t, ok)
	require.Equal(t, "a1", price.AuctionID)
	require.Equal(t, 120.0, price.CurrentPrice)

	require.NoError(t, publisher.NotifyUser(ctx, "bob", "a1", "You have been outbid"))
	n, ok := recv(t, c).(Notification)
	require.True(t, ok)
	require.Equal(t, "You have been outbid", n.Message)

	require.Eventually(t, func() bool {
		pending, err := notifications.ListUndelivered(ctx, "bob")
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
