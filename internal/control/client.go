package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends reviewer commands to a running tournament's control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the given control socket
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout sets the per-command timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send delivers one command and waits for the response.
func (c *Client) Send(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tournament (is a run active?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Approve resolves the open checkpoint in favor of the pending finalists
func (c *Client) Approve(actor string) (*Response, error) {
	return c.Send(Command{Type: CmdApprove, Actor: actor, Timestamp: time.Now()})
}

// Reject removes one finalist from the pending winner set
func (c *Client) Reject(candidateID, actor, note string) (*Response, error) {
	return c.Send(Command{Type: CmdReject, CandidateID: candidateID, Actor: actor, Note: note, Timestamp: time.Now()})
}

// Reinstate returns an eliminated candidate to the pending winner set
func (c *Client) Reinstate(candidateID, actor, note string) (*Response, error) {
	return c.Send(Command{Type: CmdReinstate, CandidateID: candidateID, Actor: actor, Note: note, Timestamp: time.Now()})
}

// Abort ends the running tournament
func (c *Client) Abort(actor, reason string) (*Response, error) {
	return c.Send(Command{Type: CmdAbort, Actor: actor, Note: reason, Timestamp: time.Now()})
}

// Status reports the run's current phase and any pending review
func (c *Client) Status() (*Response, error) {
	return c.Send(Command{Type: CmdStatus, Timestamp: time.Now()})
}
