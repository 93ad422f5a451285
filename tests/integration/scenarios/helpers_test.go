package scenarios

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	integration "pulsehrtest"
	"pulsehrtest/internal/httpclient"
)

type board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type task struct {
	ID       string `json:"id"`
	ColumnID string `json:"columnId"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
}

type snapshot struct {
	Board   board    `json:"board"`
	Columns []column `json:"columns"`
	Tasks   []task   `json:"tasks"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func baseURL() string {
	if v := os.Getenv("API_BASE"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func newClient(t *testing.T) *httpclient.Client {
	t.Helper()
	base := baseURL()
	if _, err := http.Get(base + "/healthz"); err != nil {
		t.Skipf("skipping, API not reachable: %v", err)
	}
	bearer := os.Getenv("TEST_BEARER")
	if bearer == "" {
		tok, err := integration.TestToken("integration-user")
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		bearer = tok
	}
	return httpclient.New(base, bearer)
}

// wsClient is one live gateway connection.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, bearer string) *wsClient {
	t.Helper()
	wsURL := strings.Replace(baseURL(), "http", "ws", 1) + "/ws?token=" + bearer
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, data any) {
	c.t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s data: %v", event, err)
	}
	if err := c.conn.WriteJSON(frame{Event: event, Data: payload}); err != nil {
		c.t.Fatalf("send %s: %v", event, err)
	}
}

// expect reads frames until one matching event arrives, failing on timeout.
// Other events received in the meantime are discarded.
func (c *wsClient) expect(event string, out any) {
	c.t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == "error" && event != "error" {
			c.t.Fatalf("waiting for %s, got error frame: %s", event, f.Data)
		}
		if f.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(f.Data, out); err != nil {
				c.t.Fatalf("decode %s data: %v", event, err)
			}
		}
		return
	}
}

// expectSilence asserts no frame with the given event arrives within the window.
func (c *wsClient) expectSilence(event string, window time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(window))
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return // timeout is the expected outcome
		}
		if f.Event == event {
			c.t.Fatalf("unexpected %s frame: %s", event, f.Data)
		}
	}
}

func (c *wsClient) joinBoard(boardID string) {
	c.t.Helper()
	c.send("join-board", map[string]string{"boardId": boardID})
	c.expect("board-joined", nil)
}

func createBoard(t *testing.T, client *httpclient.Client, name string) board {
	t.Helper()
	var b board
	resp, err := client.PostJSON("/api/boards", map[string]string{"name": name}, &b)
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create board status %d", resp.StatusCode)
	}
	t.Cleanup(func() { _, _ = client.Delete("/api/boards/" + b.ID) })
	return b
}

func getSnapshot(t *testing.T, client *httpclient.Client, boardID string) snapshot {
	t.Helper()
	var snap snapshot
	resp, err := client.GetJSON("/api/boards/"+boardID, &snap)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status %d", resp.StatusCode)
	}
	return snap
}
