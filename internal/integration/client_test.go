package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatdesk/internal/app"
	"chatdesk/internal/config"
	"chatdesk/internal/logger"
	"chatdesk/pkg/types"
)

const readTimeout = 2 * time.Second

// chatServer runs the full application behind an httptest server.
type chatServer struct {
	app *app.Application
	srv *httptest.Server
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	require.NoError(t, logger.Init(logger.Config{
		Level: "panic", Format: "text", Output: "stdout", Path: t.TempDir(),
		MaxSize: 1, MaxBackups: 1, MaxAge: 1,
	}))

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.Upload.Dir = filepath.Join(t.TempDir(), "uploads")
	cfg.Chat.TimeZone = "UTC"

	application, err := app.NewApplication(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
		srv.Close()
	})
	return &chatServer{app: application, srv: srv}
}

// wsClient is one end-user socket.
type wsClient struct {
	t    *testing.T
	name string
	conn *websocket.Conn
}

func (s *chatServer) dial(t *testing.T, path string) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

// connect dials role/id and waits until the server-side session is open.
func (s *chatServer) connect(t *testing.T, role types.Role, id int64) *wsClient {
	t.Helper()
	conn, err := s.dial(t, fmt.Sprintf("/ws/%s/chat/%d", role, id))
	require.NoError(t, err)
	c := &wsClient{t: t, name: fmt.Sprintf("%s-%d", role, id), conn: conn}
	c.send(map[string]any{"type": types.EventGetUnreadCount})
	c.expect(types.EventUnreadCount)
	return c
}

func (c *wsClient) send(frame map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(frame), c.name)
}

func (c *wsClient) read(timeout time.Duration) (map[string]any, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// expect reads the next frame and requires it to be of type want.
func (c *wsClient) expect(want string) map[string]any {
	c.t.Helper()
	frame, err := c.read(readTimeout)
	require.NoError(c.t, err, "%s waiting for %s", c.name, want)
	require.Equal(c.t, want, frame["type"], "%s got %v", c.name, frame)
	return frame
}

// expectNothing requires that no frame arrives for a short while. A read
// timeout leaves a gorilla connection unusable, so this is always the last
// read on c.
func (c *wsClient) expectNothing() {
	c.t.Helper()
	frame, err := c.read(200 * time.Millisecond)
	require.Error(c.t, err, "%s unexpectedly got %v", c.name, frame)
}
