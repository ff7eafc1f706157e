package results

import (
    "net/url"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "latdecomp/pkg/tracker"
)

// WebSocketSink pushes every flush as a JSON Batch to a collector.
type WebSocketSink struct {
    mu        sync.Mutex
    conn      *websocket.Conn
    writeWait time.Duration
}

// DialWebSocket connects to the collector at rawURL.
func DialWebSocket(rawURL string) (*WebSocketSink, error) {
    u, err := url.Parse(rawURL)
    if err != nil { return nil, err }
    dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
    conn, _, err := dialer.Dial(u.String(), nil)
    if err != nil { return nil, err }
    return &WebSocketSink{conn: conn, writeWait: 10 * time.Second}, nil
}

func (s *WebSocketSink) Write(variant Variant, recs []tracker.LatencyRecord) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil { return err }
    return s.conn.WriteJSON(NewBatch(variant, recs))
}

// Close sends a normal close frame before dropping the connection.
func (s *WebSocketSink) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
    _ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
    return s.conn.Close()
}
