package mq

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// dialWebsocket opens a ws:// or wss:// connection and adapts it to net.Conn
// so the rest of the client can treat it like any other transport.
func dialWebsocket(ctx context.Context, server string, tlsConfig *tls.Config) (net.Conn, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"mqtt"},
		TLSClientConfig:  tlsConfig,
	}

	wsConn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	return &websocketConn{conn: wsConn}, nil
}

// websocketConn adapts a *websocket.Conn to the net.Conn interface expected
// by the client's reader/writer plumbing. MQTT packets are carried as
// binary websocket messages; a partial read buffers the remainder of the
// current message across Read calls.
type websocketConn struct {
	conn    *websocket.Conn
	reader  []byte
	readErr error
}

func (w *websocketConn) Read(p []byte) (int, error) {
	for len(w.reader) == 0 {
		if w.readErr != nil {
			return 0, w.readErr
		}
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readErr = err
			return 0, err
		}
		w.reader = data
	}
	n := copy(p, w.reader)
	w.reader = w.reader[n:]
	return n, nil
}

func (w *websocketConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *websocketConn) Close() error {
	return w.conn.Close()
}

func (w *websocketConn) LocalAddr() net.Addr  { return w.conn.LocalAddr() }
func (w *websocketConn) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }

func (w *websocketConn) SetDeadline(t time.Time) error {
	if err := w.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return w.conn.SetWriteDeadline(t)
}

func (w *websocketConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *websocketConn) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}
