package transport

import (
	"bufio"
	"context"
	goerrs "errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sessamekesh/proximity-voice-bridge/pkg/errors"
)

// LineConn is a connection to the game server that moves one protocol line
// at a time. ReadLine may return a line with its terminator still attached.
type LineConn interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Flush() error

	SetReadDeadline(t time.Time) error
	// Shutdown closes both directions of the connection.
	Shutdown() error

	RemoteAddr() string
}

type tcpLineConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	// Bytes of a line interrupted by a read deadline.
	partial []byte
}

func NewTcpLineConn(conn net.Conn) LineConn {
	return &tcpLineConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

func (c *tcpLineConn) ReadLine() ([]byte, error) {
	chunk, err := c.reader.ReadBytes('\n')
	line := append(c.partial, chunk...)
	c.partial = nil

	if err != nil {
		if isTimeout(err) {
			c.partial = line
			return nil, err
		}
		if len(line) > 0 {
			// Unterminated last line, the error comes back on the next read.
			return line, nil
		}
		return nil, err
	}
	return line, nil
}

func (c *tcpLineConn) WriteLine(line []byte) error {
	_, err := c.writer.Write(line)
	return err
}

func (c *tcpLineConn) Flush() error {
	return c.writer.Flush()
}

func (c *tcpLineConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *tcpLineConn) Shutdown() error {
	if tcpConn, ok := c.conn.(*net.TCPConn); ok {
		_ = tcpConn.CloseRead()
		_ = tcpConn.CloseWrite()
	}
	return c.conn.Close()
}

func (c *tcpLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return goerrs.As(err, &netErr) && netErr.Timeout()
}

func strconvPort(port uint16) string {
	return strconv.FormatUint(uint64(port), 10)
}

type DialParams struct {
	Address string
	Port    uint16

	DialTimeout time.Duration
}

func isWebsocketAddress(address string) bool {
	return strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://")
}

// DialAddress is the address Dial will connect to. Plain hosts are joined
// with the port; ws:// and wss:// URLs get the port only if they have none.
func (p DialParams) DialAddress() string {
	if !isWebsocketAddress(p.Address) {
		return net.JoinHostPort(p.Address, strconvPort(p.Port))
	}

	u, err := url.Parse(p.Address)
	if err != nil || u.Port() != "" || p.Port == 0 {
		return p.Address
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconvPort(p.Port))
	return u.String()
}

// Dial opens the game server connection: a WebSocket when the address is a
// ws:// or wss:// URL, plain TCP otherwise.
func Dial(ctx context.Context, params DialParams) (LineConn, error) {
	timeout := params.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := params.DialAddress()

	if isWebsocketAddress(address) {
		conn, err := dialWebsocket(dialCtx, address)
		if err != nil {
			return nil, &errors.ConnectionError{Address: address, Err: err}
		}
		return conn, nil
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, &errors.ConnectionError{Address: address, Err: err}
	}
	return NewTcpLineConn(conn), nil
}
