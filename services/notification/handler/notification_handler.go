package handler

import (
	"context"
	"fmt"
	"net/http"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
	"auction-house/services/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type NotificationLister interface {
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error)
}

type NotificationHandler struct {
	store NotificationLister
}

func NewNotificationHandler(store NotificationLister) *NotificationHandler {
	return &NotificationHandler{store: store}
}

type listQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ListHandler handles GET /notifications, newest first.
func (h *NotificationHandler) ListHandler(c *gin.Context) {
	userID, _ := utils.UserID(c)

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListNotificationsHandler", err)
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit < 0 || q.Limit > maxLimit || q.Offset < 0 {
		helpers.RespondError(c, "ListNotificationsHandler",
			fmt.Errorf("limit %d offset %d: %w", q.Limit, q.Offset, auctionerrors.ErrInvalidPagination), nil)
		return
	}

	list, err := h.store.ListNotifications(c.Request.Context(), userID, q.Limit, q.Offset)
	if err != nil {
		helpers.RespondError(c, "ListNotificationsHandler", err, map[string]any{"user_id": userID})
		return
	}
	if list == nil {
		list = []model.Notification{}
	}

	utils.JSONResponse(c, http.StatusOK, list, "notifications retrieved successfully")
	helpers.LogSuccess("ListNotificationsHandler", "notifications retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(list),
	})
}
