package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"omibyte.io/regview/bitutil"
)

type GDBConfig struct {
	// MaxReadSize and MaxWriteSize cap the bytes moved by a single m or M
	// packet. Requests above the limit are split.
	MaxReadSize  int
	MaxWriteSize int

	// Retries is how often a packet is resent after a negative acknowledge.
	Retries int
}

// GDBClient talks the GDB remote serial protocol to a debug stub such as
// OpenOCD, pyOCD or a probe's built in gdbserver. Only memory access is
// implemented. A client serializes its requests.
type GDBClient struct {
	mu   sync.Mutex
	conn io.ReadWriter
	rx   *bufio.Reader
	cfg  GDBConfig
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func DialGDB(ctx context.Context, address string, cfg GDBConfig) (*GDBClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTarget, err)
	}
	return NewGDBClient(conn, cfg), nil
}

func NewGDBClient(conn io.ReadWriter, cfg GDBConfig) *GDBClient {
	if cfg.MaxReadSize <= 0 {
		cfg.MaxReadSize = 1024
	}
	if cfg.MaxWriteSize <= 0 {
		cfg.MaxWriteSize = 1024
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}

	return &GDBClient{
		conn: conn,
		rx:   bufio.NewReader(conn),
		cfg:  cfg,
	}
}

func (c *GDBClient) Close() error {
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *GDBClient) ReadMemory(ctx context.Context, address string, length int) ([]byte, error) {
	base, ok := bitutil.ParseInteger(address)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAddress, address)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.watch(ctx)()

	result := make([]byte, 0, length)
	for len(result) < length {
		n := min(length-len(result), c.cfg.MaxReadSize)
		at := base + uint32(len(result))

		reply, err := c.command(fmt.Sprintf("m%x,%x", at, n))
		if err != nil {
			return nil, c.contextError(ctx, err)
		}
		if err := replyError(reply, at); err != nil {
			return nil, err
		}

		data, err := hex.DecodeString(reply)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed memory reply %q", ErrProtocol, reply)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: no data at %s", ErrTarget, bitutil.HexFormat(at, bitutil.DefaultHexPadding, true))
		}
		// Stubs may answer with fewer bytes than requested
		if len(data) > n {
			data = data[:n]
		}
		result = append(result, data...)
	}
	return result, nil
}

func (c *GDBClient) WriteMemory(ctx context.Context, address string, data string) error {
	base, ok := bitutil.ParseInteger(address)
	if !ok {
		return fmt.Errorf("%w: %q", ErrAddress, address)
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrData, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.watch(ctx)()

	for offset := 0; offset < len(raw); offset += c.cfg.MaxWriteSize {
		chunk := raw[offset:min(offset+c.cfg.MaxWriteSize, len(raw))]
		at := base + uint32(offset)

		reply, err := c.command(fmt.Sprintf("M%x,%x:%s", at, len(chunk), hex.EncodeToString(chunk)))
		if err != nil {
			return c.contextError(ctx, err)
		}
		if err := replyError(reply, at); err != nil {
			return err
		}
		if reply != "OK" {
			return fmt.Errorf("%w: unexpected write reply %q", ErrProtocol, reply)
		}
	}
	return nil
}

// watch applies the context deadline to the connection and returns the
// function resetting it.
func (c *GDBClient) watch(ctx context.Context) func() {
	conn, ok := c.conn.(deadliner)
	if !ok {
		return func() {}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		conn.SetDeadline(time.Time{})
	}
}

func (c *GDBClient) contextError(ctx context.Context, err error) error {
	// The connection deadline may expire just ahead of the context
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		<-ctx.Done()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func replyError(reply string, address uint32) error {
	if len(reply) == 0 {
		return fmt.Errorf("%w: request not supported by the stub", ErrProtocol)
	}
	if len(reply) == 3 && reply[0] == 'E' {
		return fmt.Errorf("%w: error %s accessing %s", ErrTarget, reply[1:],
			bitutil.HexFormat(address, bitutil.DefaultHexPadding, true))
	}
	return nil
}

// command sends a packet until it is acknowledged and returns the reply.
func (c *GDBClient) command(payload string) (string, error) {
	for attempt := 0; ; attempt++ {
		if err := writePacket(c.conn, []byte(payload)); err != nil {
			return "", fmt.Errorf("%w: %w", ErrTarget, err)
		}

		ack, err := c.readAck()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrTarget, err)
		}
		if ack {
			break
		}
		if attempt >= c.cfg.Retries {
			return "", fmt.Errorf("%w: packet %q rejected %d times", ErrProtocol, payload, attempt+1)
		}
	}

	for attempt := 0; ; attempt++ {
		reply, err := readPacket(c.rx)
		if err == nil {
			if _, err := c.conn.Write([]byte{'+'}); err != nil {
				return "", fmt.Errorf("%w: %w", ErrTarget, err)
			}
			return string(reply), nil
		}
		if err != errChecksum || attempt >= c.cfg.Retries {
			return "", fmt.Errorf("%w: %w", ErrTarget, err)
		}
		if _, err := c.conn.Write([]byte{'-'}); err != nil {
			return "", fmt.Errorf("%w: %w", ErrTarget, err)
		}
	}
}

func (c *GDBClient) readAck() (bool, error) {
	for {
		b, err := c.rx.ReadByte()
		if err != nil {
			return false, err
		}
		switch b {
		case '+':
			return true, nil
		case '-':
			return false, nil
		}
	}
}

var errChecksum = fmt.Errorf("%w: checksum mismatch", ErrProtocol)

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// writePacket frames payload as $payload#cc, escaping the characters the
// protocol reserves.
func writePacket(w io.Writer, payload []byte) error {
	var body bytes.Buffer
	for _, b := range payload {
		switch b {
		case '$', '#', '}', '*':
			body.WriteByte('}')
			body.WriteByte(b ^ 0x20)
		default:
			body.WriteByte(b)
		}
	}

	var packet bytes.Buffer
	packet.WriteByte('$')
	packet.Write(body.Bytes())
	fmt.Fprintf(&packet, "#%02x", checksum(body.Bytes()))
	_, err := w.Write(packet.Bytes())
	return err
}

// readPacket skips to the next '$' and returns the decoded payload. Escapes
// and run-length encoding are expanded after the checksum is verified over
// the raw bytes.
func readPacket(r *bufio.Reader) ([]byte, error) {
	if _, err := r.ReadBytes('$'); err != nil {
		return nil, err
	}
	raw, err := r.ReadBytes('#')
	if err != nil {
		return nil, err
	}
	raw = raw[:len(raw)-1]

	var sum [2]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return nil, err
	}
	expected, err := hex.DecodeString(strings.ToLower(string(sum[:])))
	if err != nil || expected[0] != checksum(raw) {
		return nil, errChecksum
	}

	payload := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '}':
			i++
			if i == len(raw) {
				return nil, fmt.Errorf("%w: dangling escape", ErrProtocol)
			}
			payload = append(payload, raw[i]^0x20)
		case '*':
			i++
			if i == len(raw) || len(payload) == 0 || raw[i] < 29 {
				return nil, fmt.Errorf("%w: malformed run length", ErrProtocol)
			}
			last := payload[len(payload)-1]
			for n := int(raw[i]) - 29; n > 0; n-- {
				payload = append(payload, last)
			}
		default:
			payload = append(payload, raw[i])
		}
	}
	return payload, nil
}
