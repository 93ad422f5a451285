package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Opens many gateway connections joined to one board and counts the
// frames fanned out to them while other clients mutate the board.
func main() {
	wsURL := getenv("WS_URL", "ws://localhost:8080/ws")
	boardID := getenv("BOARD_ID", "load-board")
	conns := getenvInt("WS_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second
	bearer := os.Getenv("TEST_BEARER")
	if bearer != "" {
		wsURL += "?token=" + bearer
	}

	var frames uint64
	var attempts uint64
	var failures uint64

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(conns)
	for range conns {
		go func() {
			defer wg.Done()
			backoff := time.Second
			for {
				if ctx.Err() != nil {
					return
				}
				atomic.AddUint64(&attempts, 1)
				conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
				if err != nil {
					atomic.AddUint64(&failures, 1)
					time.Sleep(backoff)
					backoff = min(backoff*2, 5*time.Second)
					continue
				}
				backoff = time.Second

				join, _ := json.Marshal(map[string]string{"boardId": boardID})
				if err := conn.WriteJSON(frame{Event: "join-board", Data: join}); err != nil {
					_ = conn.Close()
					atomic.AddUint64(&failures, 1)
					continue
				}
				for {
					if ctx.Err() != nil {
						_ = conn.Close()
						return
					}
					_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
					var f frame
					if err := conn.ReadJSON(&f); err != nil {
						_ = conn.Close()
						break
					}
					atomic.AddUint64(&frames, 1)
				}
			}
		}()
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			fmt.Printf("done: frames=%d attempts=%d failures=%d\n",
				atomic.LoadUint64(&frames), atomic.LoadUint64(&attempts), atomic.LoadUint64(&failures))
			return
		case <-ticker.C:
			fmt.Printf("frames=%d attempts=%d failures=%d\n",
				atomic.LoadUint64(&frames), atomic.LoadUint64(&attempts), atomic.LoadUint64(&failures))
		}
	}
}
