package engine

import (
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"proxy-fleet/pkg/model"
)

// ConnectionsFeed maintains a websocket subscription to the engine's live
// connection stream and keeps the latest payload for readers.
type ConnectionsFeed struct {
	endpoint string

	mu     sync.RWMutex
	latest model.ConnectionsSnapshot
	onMsg  func(model.ConnectionsSnapshot)
	stop   chan struct{}
	once   sync.Once
}

// NewConnectionsFeed builds a feed for the controller at baseURL. onMsg, if
// non-nil, runs for every received payload.
func NewConnectionsFeed(baseURL, secret string, onMsg func(model.ConnectionsSnapshot)) (*ConnectionsFeed, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	u.Scheme = scheme
	u.Path = "/connections"
	if secret != "" {
		q := u.Query()
		q.Set("token", secret)
		u.RawQuery = q.Encode()
	}
	return &ConnectionsFeed{
		endpoint: u.String(),
		onMsg:    onMsg,
		stop:     make(chan struct{}),
	}, nil
}

func (f *ConnectionsFeed) Start() {
	go f.loop()
}

func (f *ConnectionsFeed) Stop() {
	f.once.Do(func() { close(f.stop) })
}

// Latest returns the most recent payload seen on the stream.
func (f *ConnectionsFeed) Latest() model.ConnectionsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

func (f *ConnectionsFeed) loop() {
	for {
		select {
		case <-f.stop:
			return
		default:
		}
		conn, resp, err := websocket.DefaultDialer.Dial(f.endpoint, nil)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			log.Printf("connections ws dial failed: %v (status=%d)", err, status)
			select {
			case <-f.stop:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		f.read(conn)
	}
}

func (f *ConnectionsFeed) read(conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-f.stop:
			return
		default:
		}
		var snap model.ConnectionsSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			log.Printf("connections ws read failed: %v", err)
			return
		}
		f.mu.Lock()
		f.latest = snap
		f.mu.Unlock()
		if f.onMsg != nil {
			f.onMsg(snap)
		}
	}
}
