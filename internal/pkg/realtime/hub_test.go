package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger, "")

	// 测试服务器直接用 ?user= 指定身份，令牌校验属于 api 层，不在这里测。
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := strconv.ParseUint(r.URL.Query().Get("user"), 10, 64)
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		if err := hub.Join(w, r, uint(uid)); err != nil {
			t.Errorf("join: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = hub.Close() })
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID uint) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + strconv.FormatUint(uint64(userID), 10)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForRoom(t *testing.T, hub *Hub, userID uint, size int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(userID) != size {
		if time.Now().After(deadline) {
			t.Fatalf("room %d never reached size %d (got %d)", userID, size, hub.RoomSize(userID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func TestHub_PublishReachesRoom(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, srv, 7)
	waitForRoom(t, hub, 7, 1)

	hub.Publish(7, EventNewNotification, map[string]string{"message": "hello"})

	f := readFrame(t, conn)
	if f.Event != EventNewNotification {
		t.Fatalf("expected %s, got %s", EventNewNotification, f.Event)
	}
	data, ok := f.Data.(map[string]interface{})
	if !ok || data["message"] != "hello" {
		t.Fatalf("unexpected payload: %v", f.Data)
	}
}

func TestHub_MultiDeviceSharesRoom(t *testing.T) {
	hub, srv := newTestHub(t)

	connA := dial(t, srv, 9)
	connB := dial(t, srv, 9)
	waitForRoom(t, hub, 9, 2)

	hub.Publish(9, EventJobUpdate, map[string]interface{}{"jobId": 3})

	for _, conn := range []*websocket.Conn{connA, connB} {
		f := readFrame(t, conn)
		if f.Event != EventJobUpdate {
			t.Fatalf("expected %s, got %s", EventJobUpdate, f.Event)
		}
	}
}

func TestHub_PublishDoesNotLeakAcrossRooms(t *testing.T) {
	hub, srv := newTestHub(t)

	connOther := dial(t, srv, 21)
	waitForRoom(t, hub, 21, 1)

	hub.Publish(22, EventApplicationUpdate, map[string]string{"status": "accepted"})

	_ = connOther.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := connOther.ReadMessage(); err == nil {
		t.Fatalf("expected no message for user 21")
	}
}

func TestHub_DisconnectLeavesRoom(t *testing.T) {
	hub, srv := newTestHub(t)

	conn := dial(t, srv, 11)
	waitForRoom(t, hub, 11, 1)

	conn.Close()
	waitForRoom(t, hub, 11, 0)

	// 断开后的 Publish 不应 panic
	hub.Publish(11, EventNewApplication, map[string]string{"jobTitle": "cafe"})
}
