// Package events はWebSocketで接続中の画面へ状態変更を通知するハブを提供する。
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait はメッセージ書き込みのタイムアウト。
	writeWait = 10 * time.Second
	// pongWait はpong応答を待つ時間。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くする。
	pingPeriod = (pongWait * 9) / 10
	// sendBufferSize はクライアントごとの送信バッファ。
	sendBufferSize = 16
)

// MessageTypeState は状態変更通知のメッセージ種別。
const MessageTypeState = "state"

// Message はクライアントへ送信する通知。
type Message struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	BookCount int    `json:"bookCount"`
}

// client は接続中の1クライアント。
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub は接続中のクライアントを管理し、通知をブロードキャストする。
// Runを起動してから利用すること。
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
}

// NewHub はHubを生成する。
// allowedOriginが空の場合は同一オリジンからの接続のみ許可する。
func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, allowedOrigin)
			},
		},
	}
}

// Run はctxがキャンセルされるまでクライアントの登録と配信を処理する。
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case payload := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// 受信が追いつかないクライアントは切断する
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// StateChanged は状態変更を全クライアントへ通知する。
// 配信キューが満杯の場合は通知を破棄し、呼び出し元をブロックしない。
func (h *Hub) StateChanged(state string, bookCount int) {
	h.Publish(Message{Type: MessageTypeState, State: state, BookCount: bookCount})
}

// Publish はメッセージを配信キューに積む。
func (h *Hub) Publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		slog.Warn("event queue is full, dropping notification", slog.String("type", msg.Type))
	}
}

// ClientCount は接続中のクライアント数を返す。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS はHTTP接続をWebSocketにアップグレードしてクライアントを登録する。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump はクライアントからの切断とpongを検出する。受信メッセージは破棄する。
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump は送信キューのメッセージと定期的なpingを書き込む。
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin はOriginヘッダが許可されたオリジンかを検証する。
// Originヘッダのない接続（ブラウザ以外）は許可する。
func checkOrigin(r *http.Request, allowedOrigin string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if allowedOrigin != "" && origin == allowedOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
