package probe

import (
	"net"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscgate/config"
	gerrors "oscgate/internal/errors"
	"oscgate/internal/transport"
	"oscgate/util"
)

func holdUDP(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	return pc.LocalAddr().(*net.UDPAddr).Port
}

func holdTCP(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestCheck_FreePort(t *testing.T) {
	port, err := util.FindFreeUDPPort()
	require.NoError(t, err)
	p := New("", nil)
	assert.True(t, p.Check(port))
	// The throwaway listener is released, so a second check agrees.
	assert.True(t, p.Check(port))
}

func TestCheck_TakenPort(t *testing.T) {
	assert.False(t, New("", nil).Check(holdUDP(t)))
}

func TestCheckPort_TCP(t *testing.T) {
	p := New("127.0.0.1", nil)
	assert.False(t, p.CheckPort("tcp", holdTCP(t)))

	free, err := util.FindFreePort()
	require.NoError(t, err)
	assert.True(t, p.CheckPort("tcp", free))
}

func TestCheckPort_UnknownNetwork(t *testing.T) {
	assert.False(t, New("", nil).CheckPort("sctp", 1234))
}

func TestEnsurePort_Free(t *testing.T) {
	port, err := util.FindFreeUDPPort()
	require.NoError(t, err)
	peer := transport.NewMem("gui", transport.Options{})

	err = New("", nil).EnsurePort(config.ProbeTarget{Name: "scsynth", Network: "udp", Port: port}, peer)
	require.NoError(t, err)
	assert.Empty(t, peer.Sent())
}

func TestEnsurePort_TakenNotifiesOnce(t *testing.T) {
	port := holdUDP(t)
	peer := transport.NewMem("gui", transport.Options{})

	err := New("", nil).EnsurePort(config.ProbeTarget{Name: "osc-cues", Network: "udp", Port: port}, peer)

	var bindErr *gerrors.BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, port, bindErr.Port)
	assert.Equal(t, "udp", bindErr.Network)

	sent := peer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, BootErrorAddress, sent[0].Address)
	assert.Equal(t, []interface{}{
		"Port unavailable: " + itoa(port) + ", is Sonic Pi already running?",
	}, sent[0].Args)
}

func TestEnsurePort_UnreachablePeerTolerated(t *testing.T) {
	port := holdUDP(t)
	peer := transport.NewMem("gui", transport.Options{})
	peer.FailSends(gerrors.ErrNotConnected)

	err := New("", nil).EnsurePort(config.ProbeTarget{Name: "erlang", Network: "udp", Port: port}, peer)
	assert.True(t, gerrors.As(err, new(*gerrors.BindError)))
	assert.Len(t, peer.Sent(), 1)
}

func TestEnsurePort_NilPeer(t *testing.T) {
	err := New("", nil).EnsurePort(config.ProbeTarget{Name: "websocket", Network: "tcp", Port: holdTCP(t)}, nil)
	assert.Error(t, err)
}

func TestEnsureAll_StopsAtFirstFailure(t *testing.T) {
	free, err := util.FindFreeUDPPort()
	require.NoError(t, err)
	taken := holdUDP(t)
	alsoTaken := holdUDP(t)
	peer := transport.NewMem("gui", transport.Options{})

	err = New("", nil).EnsureAll([]config.ProbeTarget{
		{Name: "scsynth", Network: "udp", Port: free},
		{Name: "scsynth-send", Network: "udp", Port: free},
		{Name: "osc-cues", Network: "udp", Port: taken},
		{Name: "erlang", Network: "udp", Port: alsoTaken},
	}, peer)

	var bindErr *gerrors.BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, taken, bindErr.Port)
	assert.Len(t, peer.Sent(), 1, "one notice for the first failure only")
}

func TestHolder_FindsThisProcess(t *testing.T) {
	port := holdTCP(t)
	who := Holder("tcp", port)
	if who == "" {
		t.Skip("connection table not readable here")
	}
	assert.True(t, strings.Contains(who, itoa(os.Getpid())), "holder %q should name our pid", who)
}

func TestHolder_NobodyListening(t *testing.T) {
	free, err := util.FindFreePort()
	require.NoError(t, err)
	assert.Equal(t, "", Holder("tcp", free))
}

func itoa(n int) string { return strconv.Itoa(n) }
