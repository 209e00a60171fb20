package live

import (
	"context"

	"github.com/gorilla/websocket"
)

// Client is a Go client for a live session.
type Client struct {
	ws *websocket.Conn
}

// Dial connects to a session URL such as ws://host/live/abc.
func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{ws: ws}, nil
}

// Send writes one request.
func (c *Client) Send(m Message) error {
	return c.ws.WriteJSON(m)
}

// Next blocks for the next reply.
func (c *Client) Next() (Reply, error) {
	var r Reply
	err := c.ws.ReadJSON(&r)
	return r, err
}

// Dispatch fires event at target and waits for the reply.
func (c *Client) Dispatch(target, event string, detail map[string]any) (Reply, error) {
	if err := c.Send(Message{Type: TypeDispatch, Target: target, Event: event, Detail: detail}); err != nil {
		return Reply{}, err
	}
	return c.Next()
}

// Set writes values into the session's root scope and waits for the reply.
func (c *Client) Set(values map[string]any) (Reply, error) {
	if err := c.Send(Message{Type: TypeSet, Values: values}); err != nil {
		return Reply{}, err
	}
	return c.Next()
}

// Close sends a close frame and closes the socket.
func (c *Client) Close() error {
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
