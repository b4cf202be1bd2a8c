package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultHost       = "192.168.10.1"
	DefaultPort       = 8889
	DefaultBufferSize = 1024
)

var (
	// ErrInvalidReply is returned when reply bytes are not valid UTF-8 text.
	ErrInvalidReply = errors.New("reply is not valid utf-8")
	// ErrTimeout is returned when a reply timeout is configured and expires.
	ErrTimeout = errors.New("timed out waiting for reply")
)

// Client sends text datagrams to a fixed peer and optionally waits for
// the next datagram in reply. It holds no protocol state.
// Client is not safe for concurrent use.
type Client struct {
	conn         *net.UDPConn
	peer         *net.UDPAddr
	buf          []byte
	replyTimeout time.Duration
}

// NewClient binds a local UDP socket (localPort 0 picks an ephemeral port)
// and fixes the peer endpoint for the lifetime of the client.
// replyTimeout of 0 means a receive blocks until a datagram arrives.
func NewClient(host string, port int, localPort int, bufferSize int,
	replyTimeout time.Duration) (*Client, error) {

	peer, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	local := &net.UDPAddr{Port: localPort}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Client{
		conn:         conn,
		peer:         peer,
		buf:          make([]byte, bufferSize),
		replyTimeout: replyTimeout,
	}, nil
}

// Peer returns the fixed peer address.
func (c *Client) Peer() *net.UDPAddr {
	return c.peer
}

// Send writes cmd to the peer without waiting for a reply.
func (c *Client) Send(cmd string) error {
	_, err := c.conn.WriteToUDP([]byte(cmd), c.peer)
	return err
}

// SendAndAwaitReply writes cmd to the peer and blocks on a single receive.
// The reply has trailing CR/LF stripped.
func (c *Client) SendAndAwaitReply(cmd string) (string, error) {
	if err := c.Send(cmd); err != nil {
		return "", err
	}
	return c.receive()
}

func (c *Client) receive() (string, error) {
	if c.replyTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.replyTimeout)); err != nil {
			return "", err
		}
	}

	n, _, err := c.conn.ReadFromUDP(c.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", ErrTimeout
		}
		return "", err
	}

	return decodeReply(c.buf[:n])
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

func decodeReply(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: % x", ErrInvalidReply, b)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
