package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a frame to the candidate may block.
	writeWait = 10 * time.Second

	// readWait is generous on purpose: a candidate reading a long
	// question legitimately sends nothing for minutes. Clients are
	// expected to ping well inside this window.
	readWait = 5 * time.Minute
)

// WriteTyped marshals one of the typed event payloads and sends it with a
// write deadline applied.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// WriteError sends an EventError frame with the given message.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON decodes the next action frame, refreshing the read deadline so
// an idle-but-alive candidate connection is not dropped between messages.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		return err
	}
	return conn.ReadJSON(v)
}
