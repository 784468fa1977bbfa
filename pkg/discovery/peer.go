package discovery

import "time"

// Status is the advertised state of a peer: idle (available for work)
// or busy (currently executing a job).
type Status string

const (
	StatusIdle Status = "idle"
	StatusBusy Status = "busy"
)

// Peer is the live view of a participant in the discovery group: its
// identity, transport address, and most recently advertised resource
// state. A Peer is created on first valid heartbeat, mutated only by
// subsequent heartbeat receipt, and destroyed by the reaper once
// liveness expires.
type Peer struct {
	Name            string
	IP              string
	Port            int
	CPUPercentUsed  float64
	RAMFreeGB       float64
	RAMTotalGB      float64
	GPUName         string
	GPUMemoryFreeGB float64
	HasGPU          bool
	Status          Status
	LastSeen        time.Time
}

func peerFromHeartbeat(h heartbeatBody, seenAt time.Time) Peer {
	return Peer{
		Name:            h.Name,
		IP:              h.IP,
		Port:            h.Port,
		CPUPercentUsed:  h.CPUPercentUsed,
		RAMFreeGB:       h.RAMFreeGB,
		RAMTotalGB:      h.RAMTotalGB,
		GPUName:         h.GPUName,
		GPUMemoryFreeGB: h.GPUMemoryFreeGB,
		HasGPU:          h.GPUName != "",
		Status:          Status(h.Status),
		LastSeen:        seenAt,
	}
}
