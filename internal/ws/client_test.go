package ws

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/versecast/backend/internal/session"
)

// newTestClient upgrades a loopback connection and hands back the server
// side client wrapper.
func newTestClient(t *testing.T) *client {
	t.Helper()

	clients := make(chan *client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		clients <- newClient(conn, session.Output)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return <-clients
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	c := newTestClient(t)

	if !c.Send([]byte(`{"action":"clear"}`)) {
		t.Error("send before close should be accepted")
	}

	c.close()
	c.close() // idempotent

	// A broadcast that snapshotted this client before its teardown ran
	// lands here; the frame must be dropped, never panic.
	if c.Send([]byte(`{"action":"clear"}`)) {
		t.Error("send after close should report the drop")
	}
}

func TestConcurrentSendAndClose(t *testing.T) {
	c := newTestClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Send([]byte(fmt.Sprintf(`{"action":"show","data":{"n":%d}}`, n*200+j)))
			}
		}(i)
	}
	c.close()
	wg.Wait()
}
