package discovery

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/homie/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDiscovery(t *testing.T, name string, port int) *Discovery {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	d, err := New(Config{
		Name:              name,
		IP:                "127.0.0.1",
		Port:              port,
		GroupSecret:       []byte("super-secret-group-key"),
		DiscoveryPort:     0,
		HeartbeatInterval: 20 * time.Millisecond,
		PeerTimeout:       120 * time.Millisecond,
		Store:             store,
	})
	require.NoError(t, err)
	return d
}

func TestNewLoadsPersistedDirectPeers(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveDirectPeers([]string{"10.0.0.5"}))

	d, err := New(Config{Name: "a", GroupSecret: []byte("secret"), Store: store})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5"}, d.DirectPeers())
}

func TestNewRejectsEmptySecret(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = New(Config{Name: "a", Store: store})
	assert.Error(t, err)
}

func TestAddAndRemoveDirectPeerPersists(t *testing.T) {
	d := testDiscovery(t, "a", 6000)

	require.NoError(t, d.AddDirectPeer("10.0.0.9"))
	assert.Equal(t, []string{"10.0.0.9"}, d.DirectPeers())

	require.NoError(t, d.AddDirectPeer("10.0.0.9")) // idempotent
	assert.Equal(t, []string{"10.0.0.9"}, d.DirectPeers())

	require.NoError(t, d.RemoveDirectPeer("10.0.0.9"))
	assert.Empty(t, d.DirectPeers())
}

func TestHandleDatagramSuppressesSelfEcho(t *testing.T) {
	d := testDiscovery(t, "self", 6001)

	body := heartbeatBody{Name: "self", IP: "127.0.0.1", Port: 6001, Status: "idle", Timestamp: time.Now().Unix()}
	sig, err := signBody(t, d, body)
	require.NoError(t, err)

	d.handleDatagram(marshalEnvelope(t, body, sig))
	assert.Equal(t, 0, d.LiveCount())
}

func TestHandleDatagramRejectsBadSignature(t *testing.T) {
	d := testDiscovery(t, "self", 6002)

	body := heartbeatBody{Name: "peer-a", IP: "127.0.0.1", Port: 6003, Status: "idle", Timestamp: time.Now().Unix()}
	d.handleDatagram(marshalEnvelope(t, body, []byte{0xde, 0xad}))
	assert.Equal(t, 0, d.LiveCount())
}

func TestHandleDatagramAddsValidPeerAndFiresCallback(t *testing.T) {
	d := testDiscovery(t, "self", 6004)

	joined := make(chan Peer, 1)
	d.cfg.OnPeerJoined = func(p Peer) { joined <- p }

	body := heartbeatBody{Name: "peer-b", IP: "127.0.0.1", Port: 6005, Status: "idle", Timestamp: time.Now().Unix()}
	sig, err := signBody(t, d, body)
	require.NoError(t, err)

	d.handleDatagram(marshalEnvelope(t, body, sig))
	require.Equal(t, 1, d.LiveCount())

	select {
	case p := <-joined:
		assert.Equal(t, "peer-b", p.Name)
	case <-time.After(time.Second):
		t.Fatal("OnPeerJoined was not called")
	}
}

func TestReapOnceEvictsStalePeersAndFiresCallback(t *testing.T) {
	d := testDiscovery(t, "self", 6006)

	left := make(chan Peer, 1)
	d.cfg.OnPeerLeft = func(p Peer) { left <- p }
	d.cfg.PeerTimeout = 10 * time.Millisecond

	d.peersMu.Lock()
	d.peers["peer-c"] = &Peer{Name: "peer-c", LastSeen: time.Now().Add(-time.Second)}
	d.peersMu.Unlock()

	d.reapOnce()

	assert.Equal(t, 0, d.LiveCount())
	select {
	case p := <-left:
		assert.Equal(t, "peer-c", p.Name)
	case <-time.After(time.Second):
		t.Fatal("OnPeerLeft was not called")
	}
}

func TestGetPeersReturnsSnapshotNotLiveMap(t *testing.T) {
	d := testDiscovery(t, "self", 6007)

	d.peersMu.Lock()
	d.peers["peer-d"] = &Peer{Name: "peer-d", LastSeen: time.Now()}
	d.peersMu.Unlock()

	snapshot := d.GetPeers()
	require.Len(t, snapshot, 1)

	d.peersMu.Lock()
	d.peers["peer-d"].Status = StatusBusy
	d.peersMu.Unlock()

	assert.Equal(t, Status(""), snapshot[0].Status)
}

func TestStartListenModeReceivesBroadcastFromAnotherInstance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping UDP integration test in short mode")
	}

	listener := testDiscovery(t, "listener", 7001)
	listener.cfg.DiscoveryPort = 17555
	require.NoError(t, listener.Start(true))
	defer listener.Stop()

	joined := make(chan struct{}, 1)
	listener.cfg.OnPeerJoined = func(Peer) {
		select {
		case joined <- struct{}{}:
		default:
		}
	}

	speaker := testDiscovery(t, "speaker", 7002)
	speaker.cfg.DiscoveryPort = 17555
	require.NoError(t, speaker.Start(false))
	defer speaker.Stop()

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never observed speaker's heartbeat")
	}

	assert.Equal(t, 1, listener.LiveCount())
}

func signBody(t *testing.T, d *Discovery, body heartbeatBody) ([]byte, error) {
	t.Helper()
	return crypto.SignHeartbeat(d.cfg.GroupSecret, body)
}

func marshalEnvelope(t *testing.T, body heartbeatBody, sig []byte) []byte {
	t.Helper()
	data, err := json.Marshal(envelope{Heartbeat: body, Sig: hex.EncodeToString(sig)})
	require.NoError(t, err)
	return data
}
