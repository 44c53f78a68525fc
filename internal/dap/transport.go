// Package dap implements the Debug Adapter Protocol side of varsnap.
//
// DAP is the request/response channel between a development tool and a
// debugger (https://microsoft.github.io/debug-adapter-protocol/). This
// package provides:
//   - Transport: framing and sequencing over a TCP connection
//   - Client: the protocol operations the capture engine and its command
//     layer need (threads, stackTrace, variables, evaluate, plus session
//     setup and breakpoints)
//   - SessionManager: lifecycle for debug sessions and resolution of the
//     active capture target
package dap

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport frames DAP messages over a single connection. Sends are
// serialized; sequence numbers are issued here so the client and transport
// agree on request identity.
type Transport struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	mu  sync.Mutex
	seq int
}

// NewTCPTransport connects to a debug adapter listening on address.
func NewTCPTransport(address string) (*Transport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}

	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}, nil
}

// NextSeq returns the next request sequence number.
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send writes one DAP message and flushes it.
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}
	return nil
}

// Receive reads one DAP message.
func (t *Transport) Receive() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return msg, nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}
