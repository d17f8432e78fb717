package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
)

// NotificationDB persists personal notifications so offline recipients can
// receive them on their next connect or through the pull endpoint.
type NotificationDB interface {
	CreateNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error)
	ListUndelivered(ctx context.Context, userID string) ([]model.Notification, error)
	MarkDelivered(ctx context.Context, notificationID string) error
}

// MemoryNotificationRepo is an in-memory NotificationDB.
type MemoryNotificationRepo struct {
	mu     sync.RWMutex
	byID   map[string]*model.Notification
	byUser map[string][]string // userID -> notification ids in creation order
}

// NewMemoryNotificationRepo creates an empty notification repository.
func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{
		byID:   make(map[string]*model.Notification),
		byUser: make(map[string][]string),
	}
}

func (r *MemoryNotificationRepo) CreateNotification(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[n.NotificationID] = &n
	r.byUser[n.UserID] = append(r.byUser[n.UserID], n.NotificationID)
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (r *MemoryNotificationRepo) ListNotifications(_ context.Context, userID string, limit, offset int) ([]model.Notification, error) {
	r.mu.RLock()
	out := make([]model.Notification, 0, len(r.byUser[userID]))
	for _, id := range r.byUser[userID] {
		out = append(out, *r.byID[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return []model.Notification{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// ListUndelivered returns a user's undelivered notifications, oldest first.
func (r *MemoryNotificationRepo) ListUndelivered(_ context.Context, userID string) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Notification
	for _, id := range r.byUser[userID] {
		if n := r.byID[id]; !n.Delivered {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *MemoryNotificationRepo) MarkDelivered(_ context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[notificationID]
	if !ok {
		return fmt.Errorf("mark notification %s delivered: %w", notificationID, auctionerrors.ErrNotificationNotFound)
	}
	n.Delivered = true
	return nil
}
