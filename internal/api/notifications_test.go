package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMarkRead_OtherUsersNotification(t *testing.T) {
	notifications := &mockNotificationStore{
		markReadFunc: func(ctx context.Context, id, userID uint) (bool, error) {
			// 属于别人的通知：按不存在处理
			return false, nil
		},
	}
	s := newTestServer(&mockJobStore{}, notifications, &mockUserStore{}, &mockPublisher{})

	w := serveAs(s, 10, http.MethodPut, "/notifications/3/read", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "3"}}
		s.handleMarkRead(c)
	}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign notification, got %d", w.Code)
	}
}

func TestMarkAllRead_Idempotent(t *testing.T) {
	notifications := &mockNotificationStore{}
	s := newTestServer(&mockJobStore{}, notifications, &mockUserStore{}, &mockPublisher{})

	for i := 0; i < 2; i++ {
		w := serveAs(s, 10, http.MethodPut, "/notifications/mark-all-read", func(c *gin.Context) {
			s.handleMarkAllRead(c)
		}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("round %d: expected 200, got %d", i, w.Code)
		}
	}
	if notifications.markAllCalls != 2 || notifications.markAllUserID != 10 {
		t.Fatalf("expected mark-all scoped to caller, calls=%d user=%d", notifications.markAllCalls, notifications.markAllUserID)
	}
}
