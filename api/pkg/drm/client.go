package drm

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Lease manager wire protocol. Requests are packed little-endian with no
// padding; the response is a status byte, a lease id and a NUL padded
// connector name, with the lease fd attached as SCM_RIGHTS.
const (
	cmdRequestLease uint8 = 1
	cmdReleaseLease uint8 = 2

	leaseResponseSize = 1 + 4 + 64
)

type leaseRequest struct {
	Cmd    uint8
	Width  uint32
	Height uint32
}

// LeaseClient requests DRM leases from a lease manager listening on a
// unix socket. A lease fd behaves like a card node restricted to the
// leased connector, CRTC and planes, and the holder is its master.
type LeaseClient struct {
	socketPath string
}

// NewLeaseClient creates a client for the lease manager at socketPath.
func NewLeaseClient(socketPath string) *LeaseClient {
	return &LeaseClient{socketPath: socketPath}
}

// Lease is a granted DRM lease.
type Lease struct {
	ID            uint32
	ConnectorName string
	FD            int // caller must close when done

	// The manager releases the lease when this connection drops, including
	// when the process is killed.
	conn net.Conn
}

// Close drops the liveness connection, which releases the lease.
func (l *Lease) Close() {
	if l == nil || l.conn == nil {
		return
	}
	l.conn.Close()
	l.conn = nil
}

// RequestLease asks the manager for a lease able to drive width x height.
func (c *LeaseClient) RequestLease(width, height uint32) (*Lease, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.socketPath, err)
	}
	unixConn := conn.(*net.UnixConn)

	req := leaseRequest{Cmd: cmdRequestLease, Width: width, Height: height}
	if err := binary.Write(unixConn, binary.LittleEndian, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write request: %w", err)
	}

	resp := make([]byte, leaseResponseSize)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unixConn.ReadMsgUnix(resp, oob)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if n < leaseResponseSize {
		conn.Close()
		return nil, fmt.Errorf("short response: %d bytes", n)
	}

	status := resp[0]
	id := binary.LittleEndian.Uint32(resp[1:5])
	name := cString(resp[5:leaseResponseSize])

	fd, err := parseRights(oob[:oobn])
	if status != 0 {
		if fd >= 0 {
			unix.Close(fd)
		}
		conn.Close()
		return nil, fmt.Errorf("lease request failed: %s", name)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().
		Str("socket", c.socketPath).
		Uint32("lease_id", id).
		Str("connector", name).
		Int("fd", fd).
		Msg("DRM lease granted")

	return &Lease{ID: id, ConnectorName: name, FD: fd, conn: conn}, nil
}

// ReleaseLease tells the manager to release a lease by id.
func (c *LeaseClient) ReleaseLease(id uint32) error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	// The id travels in the width field.
	req := leaseRequest{Cmd: cmdReleaseLease, Width: id}
	if err := binary.Write(conn, binary.LittleEndian, req); err != nil {
		return fmt.Errorf("write release request: %w", err)
	}
	return nil
}

// parseRights returns the first fd carried in oob, closing any extras.
func parseRights(oob []byte) (int, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, fmt.Errorf("parse control message: %w", err)
	}
	for _, scm := range scms {
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil || len(fds) == 0 {
			continue
		}
		for _, extra := range fds[1:] {
			unix.Close(extra)
		}
		return fds[0], nil
	}
	return -1, fmt.Errorf("no lease FD received via SCM_RIGHTS")
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
