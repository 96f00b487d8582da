package handlers

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"offline-sync-agent/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestEventsHandler_ConcurrentBroadcasts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub()
	h := &EventsHandler{Hub: hub}

	r := gin.New()
	r.GET("/control/events", func(c *gin.Context) {
		c.Set("client_id", "client-1")
		h.Handle(c)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/control/events?tag=orders"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Listeners("orders") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Many flush cycles finishing at once all write to the same connection.
	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				hub.Broadcast("orders", []byte(`{"type":"sync-complete","tag":"orders","flushed":1}`))
			}
		}()
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < writers*perWriter; i++ {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Contains(t, string(msg), "sync-complete")
	}
}
