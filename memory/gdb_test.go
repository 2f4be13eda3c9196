package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// stub is a minimal gdbserver answering m and M packets from an Image.
type stub struct {
	img *Image

	mu      sync.Mutex
	packets []string
	// nakFirst rejects the first packet received.
	nakFirst bool
	// corruptFirst sends the first reply with a broken checksum.
	corruptFirst bool
	// silent stops answering after receiving a packet.
	silent bool
}

func (s *stub) serve(conn net.Conn) {
	defer conn.Close()
	rx := bufio.NewReader(conn)
	for {
		payload, err := readPacket(rx)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.packets = append(s.packets, string(payload))
		nak := s.nakFirst
		s.nakFirst = false
		corrupt := s.corruptFirst
		s.corruptFirst = false
		silent := s.silent
		s.mu.Unlock()

		if nak {
			conn.Write([]byte{'-'})
			continue
		}
		conn.Write([]byte{'+'})
		if silent {
			continue
		}

		reply := s.handle(string(payload))
		if corrupt {
			fmt.Fprintf(conn, "$%s#00", reply)
			// The client asks for a resend
			if b, err := rx.ReadByte(); err != nil || b != '-' {
				return
			}
		}
		if err := writePacket(conn, []byte(reply)); err != nil {
			return
		}
	}
}

func (s *stub) handle(payload string) string {
	ctx := context.Background()
	switch {
	case strings.HasPrefix(payload, "m"):
		address, length, _ := strings.Cut(payload[1:], ",")
		n, _ := strconv.ParseUint(length, 16, 32)
		data, err := s.img.ReadMemory(ctx, "0x"+address, int(n))
		if err != nil {
			return "E01"
		}
		return hex.EncodeToString(data)
	case strings.HasPrefix(payload, "M"):
		header, data, _ := strings.Cut(payload[1:], ":")
		address, _, _ := strings.Cut(header, ",")
		if err := s.img.WriteMemory(ctx, "0x"+address, data); err != nil {
			return "E02"
		}
		return "OK"
	}
	return ""
}

func (s *stub) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.packets...)
}

func newStub(t *testing.T, cfg GDBConfig) (*GDBClient, *stub) {
	t.Helper()

	img := NewImage()
	img.Strict = true
	img.Store(0x20000000, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	server, client := net.Pipe()
	s := &stub{img: img}
	go s.serve(server)

	c := NewGDBClient(client, cfg)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestGDBReadMemory(t *testing.T) {
	c, s := newStub(t, GDBConfig{MaxReadSize: 4})

	data, err := c.ReadMemory(context.Background(), "0x20000000", 10)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	expected := []string{"m20000000,4", "m20000004,4", "m20000008,2"}
	if diff := cmp.Diff(expected, s.received()); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
}

func TestGDBWriteMemory(t *testing.T) {
	c, s := newStub(t, GDBConfig{MaxWriteSize: 2})

	if err := c.WriteMemory(context.Background(), "0x20000001", "aabbcc"); err != nil {
		t.Fatal(err)
	}
	expected := []string{"M20000001,2:aabb", "M20000003,1:cc"}
	if diff := cmp.Diff(expected, s.received()); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}

	data, _ := s.img.ReadMemory(context.Background(), "0x20000000", 5)
	if diff := cmp.Diff([]byte{0, 0xaa, 0xbb, 0xcc, 4}, data); diff != "" {
		t.Errorf("memory mismatch (-want +got):\n%s", diff)
	}
}

func TestGDBErrorReply(t *testing.T) {
	c, _ := newStub(t, GDBConfig{})

	_, err := c.ReadMemory(context.Background(), "0x30000000", 4)
	if !errors.Is(err, ErrTarget) {
		t.Fatalf("expected ErrTarget, got %v", err)
	}
	if !strings.Contains(err.Error(), "0x30000000") {
		t.Errorf("error %q does not name the address", err)
	}

	if err := c.WriteMemory(context.Background(), "0x30000000", "00"); !errors.Is(err, ErrTarget) {
		t.Errorf("expected ErrTarget, got %v", err)
	}
}

func TestGDBRetransmit(t *testing.T) {
	c, s := newStub(t, GDBConfig{})
	s.nakFirst = true
	s.corruptFirst = true

	data, err := c.ReadMemory(context.Background(), "0x20000000", 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 1}, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if got := len(s.received()); got != 2 {
		t.Errorf("stub received %d packets, expected the rejected one to be resent", got)
	}
}

func TestGDBDeadline(t *testing.T) {
	c, s := newStub(t, GDBConfig{})
	s.silent = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.ReadMemory(ctx, "0x20000000", 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestReadPacket(t *testing.T) {
	packet := func(raw string) string {
		return fmt.Sprintf("+$%s#%02x", raw, checksum([]byte(raw)))
	}

	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{"plain", packet("OK"), "OK", nil},
		{"runLength", packet("0* "), "0000", nil},
		{"escape", packet("a}\x03b"), "a#b", nil},
		{"badChecksum", "$OK#00", "", ErrProtocol},
		{"danglingEscape", packet("a}"), "", ErrProtocol},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := readPacket(bufio.NewReader(strings.NewReader(tc.input)))
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Errorf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if string(payload) != tc.expected {
				t.Errorf("got %q, expected %q", payload, tc.expected)
			}
		})
	}
}

func TestWritePacketEscapes(t *testing.T) {
	var buf bytes.Buffer
	if err := writePacket(&buf, []byte("a#b")); err != nil {
		t.Fatal(err)
	}
	payload, err := readPacket(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "a#b" {
		t.Errorf("got %q", payload)
	}
}
