package discovery

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/homie/pkg/crypto"
	"github.com/cuemby/homie/pkg/log"
	"github.com/cuemby/homie/pkg/metrics"
	"github.com/cuemby/homie/pkg/probe"
	"github.com/rs/zerolog"
)

// readBufferSize bounds UDP datagram reception.
const readBufferSize = 4096

// socketTimeout bounds each blocking socket operation so background
// loops remain cancellable on Stop.
const socketTimeout = 1 * time.Second

// Config configures a Discovery instance. Identity fields (Name, IP,
// Port) describe this process's own advertised state.
type Config struct {
	Name              string
	IP                string
	Port              int
	GroupSecret       []byte
	DiscoveryPort     int
	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration
	Probe             *probe.Probe
	Store             *Store
	OnPeerJoined      func(Peer)
	OnPeerLeft        func(Peer)
}

// Discovery maintains a best-effort live view of peers in the same
// group and publishes this process's own state to them.
type Discovery struct {
	cfg Config

	statusMu sync.RWMutex
	status   Status

	peersMu sync.RWMutex
	peers   map[string]*Peer

	directMu sync.Mutex
	direct   []string

	conn   *net.UDPConn
	stopCh chan struct{}
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// New constructs a Discovery from cfg. Call Start to begin operation.
func New(cfg Config) (*Discovery, error) {
	if len(cfg.GroupSecret) == 0 {
		return nil, fmt.Errorf("discovery: group secret must not be empty")
	}
	direct, err := cfg.Store.LoadDirectPeers()
	if err != nil {
		return nil, err
	}

	return &Discovery{
		cfg:    cfg,
		status: StatusIdle,
		peers:  make(map[string]*Peer),
		direct: direct,
		stopCh: make(chan struct{}),
		logger: log.WithComponent("discovery"),
	}, nil
}

// Start begins periodic broadcast. If listen is true, it also binds the
// discovery UDP port and receives heartbeats; if false, it binds an
// ephemeral port that can still receive unicast responses, for
// short-lived query-mode callers.
func (d *Discovery) Start(listen bool) error {
	port := 0
	if listen {
		port = d.cfg.DiscoveryPort
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("discovery: bind udp socket: %w", err)
	}
	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return fmt.Errorf("discovery: enable broadcast on udp socket: %w", err)
	}
	d.conn = conn

	d.wg.Add(2)
	go d.broadcastLoop()
	go d.receiveLoop()

	if listen {
		d.wg.Add(1)
		go d.reapLoop()
	}

	return nil
}

// setBroadcast enables SO_BROADCAST on conn's underlying file descriptor.
// Without it, sending to the subnet broadcast address fails with EACCES
// on Linux.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("get raw connection: %w", err)
	}

	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return fmt.Errorf("control raw connection: %w", err)
	}
	return sockErr
}

// Stop terminates all background activity and closes sockets.
func (d *Discovery) Stop() {
	close(d.stopCh)
	if d.conn != nil {
		d.conn.Close()
	}
	d.wg.Wait()
}

// SetStatus advertises status in subsequent heartbeats.
func (d *Discovery) SetStatus(status Status) {
	d.statusMu.Lock()
	d.status = status
	d.statusMu.Unlock()
}

func (d *Discovery) currentStatus() Status {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	return d.status
}

// GetPeers returns a snapshot of currently alive peers.
func (d *Discovery) GetPeers() []Peer {
	d.peersMu.RLock()
	defer d.peersMu.RUnlock()

	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	return out
}

// LiveCount reports the number of peers currently considered alive,
// satisfying pkg/metrics.PeerSource.
func (d *Discovery) LiveCount() int {
	d.peersMu.RLock()
	defer d.peersMu.RUnlock()
	return len(d.peers)
}

// AddDirectPeer adds ip to the persisted unicast heartbeat target list.
func (d *Discovery) AddDirectPeer(ip string) error {
	d.directMu.Lock()
	defer d.directMu.Unlock()

	for _, existing := range d.direct {
		if existing == ip {
			return nil
		}
	}
	d.direct = append(d.direct, ip)
	return d.cfg.Store.SaveDirectPeers(d.direct)
}

// RemoveDirectPeer removes ip from the persisted direct-peer list.
func (d *Discovery) RemoveDirectPeer(ip string) error {
	d.directMu.Lock()
	defer d.directMu.Unlock()

	filtered := d.direct[:0]
	for _, existing := range d.direct {
		if existing != ip {
			filtered = append(filtered, existing)
		}
	}
	d.direct = filtered
	return d.cfg.Store.SaveDirectPeers(d.direct)
}

// DirectPeers returns the current persisted direct-peer list.
func (d *Discovery) DirectPeers() []string {
	d.directMu.Lock()
	defer d.directMu.Unlock()

	out := make([]string, len(d.direct))
	copy(out, d.direct)
	return out
}

// WritePeerCache persists the current snapshot to peer_cache.json.
func (d *Discovery) WritePeerCache() error {
	return d.cfg.Store.WritePeerCache(d.GetPeers())
}

func (d *Discovery) broadcastLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.broadcastOnce()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Discovery) broadcastOnce() {
	reading := probe.Reading{}
	if d.cfg.Probe != nil {
		reading = d.cfg.Probe.Latest()
	}

	body := heartbeatBody{
		Name:           d.cfg.Name,
		IP:             d.cfg.IP,
		Port:           d.cfg.Port,
		CPUPercentUsed: reading.CPUPercentUsed,
		RAMFreeGB:      reading.RAMFreeGB,
		RAMTotalGB:     reading.RAMTotalGB,
		Status:         string(d.currentStatus()),
		Timestamp:      time.Now().Unix(),
	}
	if reading.HasGPU {
		body.GPUName = reading.GPUName
		body.GPUMemoryFreeGB = reading.GPUMemoryFreeGB
	}

	sig, err := crypto.SignHeartbeat(d.cfg.GroupSecret, body)
	if err != nil {
		d.logTrace("sign heartbeat", err)
		return
	}

	data, err := json.Marshal(envelope{Heartbeat: body, Sig: hex.EncodeToString(sig)})
	if err != nil {
		d.logTrace("marshal heartbeat", err)
		return
	}

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: d.cfg.DiscoveryPort}
	if _, err := d.conn.WriteToUDP(data, broadcastAddr); err != nil {
		d.logTrace("broadcast heartbeat", err)
	}

	for _, ip := range d.DirectPeers() {
		target := &net.UDPAddr{IP: net.ParseIP(ip), Port: d.cfg.DiscoveryPort}
		if _, err := d.conn.WriteToUDP(data, target); err != nil {
			d.logTrace("send direct heartbeat", err)
		}
	}
}

func (d *Discovery) receiveLoop() {
	defer d.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.conn.SetReadDeadline(time.Now().Add(socketTimeout))
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-d.stopCh:
				return
			default:
			}
			d.logTrace("read heartbeat", err)
			continue
		}

		d.handleDatagram(buf[:n])
	}
}

func (d *Discovery) handleDatagram(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.logTrace("decode heartbeat", err)
		return
	}

	if env.Heartbeat.Name == d.cfg.Name {
		return // self-echo suppression
	}

	sig, err := hex.DecodeString(env.Sig)
	if err != nil {
		metrics.HeartbeatsRejectedTotal.Inc()
		return
	}
	if !crypto.VerifyHeartbeat(d.cfg.GroupSecret, env.Heartbeat, sig) {
		metrics.HeartbeatsRejectedTotal.Inc()
		return
	}
	metrics.HeartbeatsReceivedTotal.Inc()

	peer := peerFromHeartbeat(env.Heartbeat, time.Now())

	d.peersMu.Lock()
	_, existed := d.peers[peer.Name]
	d.peers[peer.Name] = &peer
	d.peersMu.Unlock()

	if !existed && d.cfg.OnPeerJoined != nil {
		d.cfg.OnPeerJoined(peer)
	}
}

func (d *Discovery) reapLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PeerTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.reapOnce()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Discovery) reapOnce() {
	now := time.Now()
	var evicted []Peer

	d.peersMu.Lock()
	for name, peer := range d.peers {
		if now.Sub(peer.LastSeen) >= d.cfg.PeerTimeout {
			evicted = append(evicted, *peer)
			delete(d.peers, name)
		}
	}
	d.peersMu.Unlock()

	if d.cfg.OnPeerLeft != nil {
		for _, peer := range evicted {
			d.cfg.OnPeerLeft(peer)
		}
	}
}

func (d *Discovery) logTrace(action string, err error) {
	d.logger.Trace().Err(err).Msg(action)
}
