package tripstore

import (
	"fmt"
	"io"
	"net"

	"github.com/thepaulm/tripstore/internal/wire"
)

// Client speaks the generator side of the ingestion protocol over one
// TCP connection. A Client is not safe for concurrent use; tripgen
// runs one per trip worker.
type Client struct {
	conn net.Conn
}

// Dial connects to a tripstore ingestion port ("host:port")
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Begin starts a new trip at the given position and blocks until the
// server assigns a trip id
func (c *Client) Begin(lng, lat float32) (int32, error) {
	if _, err := c.conn.Write(wire.EncodeBegin(lng, lat)); err != nil {
		return 0, err
	}

	reply := make([]byte, wire.HeaderSize+4)
	if _, err := io.ReadFull(c.conn, reply); err != nil {
		return 0, err
	}
	f, err := wire.Decode(reply)
	if err != nil {
		return 0, err
	}
	if f.Kind != wire.KindID {
		return 0, fmt.Errorf("expected ID reply, got %s", f.Kind)
	}
	return f.ID, nil
}

// Update reports a position for an active trip. The server does not
// acknowledge updates.
func (c *Client) Update(id int32, lng, lat float32) error {
	_, err := c.conn.Write(wire.EncodeUpdate(id, lng, lat))
	return err
}

// End closes a trip at the given position with its fare in cents
func (c *Client) End(id int32, lng, lat float32, cents int32) error {
	_, err := c.conn.Write(wire.EncodeEnd(id, lng, lat, cents))
	return err
}

// Close shuts the connection down
func (c *Client) Close() error {
	return c.conn.Close()
}
