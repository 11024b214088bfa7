package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, handler Handler) (*Server, *Client) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := NewServer(socketPath, handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	client := NewClient(socketPath)
	client.SetTimeout(5 * time.Second)
	return srv, client
}

func TestCommandRoundTrip(t *testing.T) {
	received := make(chan Command, 8)
	_, client := startServer(t, func(cmd Command) (map[string]any, error) {
		received <- cmd
		return map[string]any{"phase": "awaiting_human_review"}, nil
	})

	resp, err := client.Approve("alice")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "awaiting_human_review", resp.Data["phase"])

	cmd := <-received
	assert.Equal(t, CmdApprove, cmd.Type)
	assert.Equal(t, "alice", cmd.Actor)
	assert.False(t, cmd.Timestamp.IsZero())

	// The accept loop keeps serving after the first connection
	resp, err = client.Reject("cand-3", "alice", "reads as derivative")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	cmd = <-received
	assert.Equal(t, CmdReject, cmd.Type)
	assert.Equal(t, "cand-3", cmd.CandidateID)
	assert.Equal(t, "reads as derivative", cmd.Note)

	_, err = client.Reinstate("cand-7", "bob", "house pick")
	require.NoError(t, err)
	cmd = <-received
	assert.Equal(t, CmdReinstate, cmd.Type)
	assert.Equal(t, "cand-7", cmd.CandidateID)

	_, err = client.Abort("bob", "weak crop")
	require.NoError(t, err)
	cmd = <-received
	assert.Equal(t, CmdAbort, cmd.Type)
	assert.Equal(t, "weak crop", cmd.Note)

	_, err = client.Status()
	require.NoError(t, err)
	cmd = <-received
	assert.Equal(t, CmdStatus, cmd.Type)
}

func TestHandlerErrorBecomesFailureResponse(t *testing.T) {
	_, client := startServer(t, func(cmd Command) (map[string]any, error) {
		return nil, errors.New("no checkpoint is awaiting review")
	})

	resp, err := client.Approve("alice")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "no checkpoint is awaiting review", resp.Error)
	assert.Contains(t, resp.Message, "approve failed")
}

func TestMissingHandlerIsReported(t *testing.T) {
	_, client := startServer(t, nil)

	resp, err := client.Status()
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "server misconfiguration", resp.Error)
}

func TestClientWithoutServer(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "nobody-home.sock"))
	client.SetTimeout(500 * time.Millisecond)

	_, err := client.Status()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestStopRemovesSocket(t *testing.T) {
	srv, client := startServer(t, func(cmd Command) (map[string]any, error) {
		return nil, nil
	})
	path := srv.SocketPath()
	assert.True(t, srv.IsRunning())

	_, err := client.Status()
	require.NoError(t, err)

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Stop is idempotent
	require.NoError(t, srv.Stop())
}
