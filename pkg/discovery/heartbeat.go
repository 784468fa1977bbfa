package discovery

// heartbeatBody is the JSON-tagged record carried inside every UDP
// gossip datagram. Optional fields use omitempty so a GPU-less peer's
// datagram carries no gpu_name/gpu_memory_free_gb keys at all rather
// than null-valued keys.
type heartbeatBody struct {
	Name            string  `json:"name"`
	IP              string  `json:"ip"`
	Port            int     `json:"port"`
	CPUPercentUsed  float64 `json:"cpu_percent_used"`
	RAMFreeGB       float64 `json:"ram_free_gb"`
	RAMTotalGB      float64 `json:"ram_total_gb"`
	GPUName         string  `json:"gpu_name,omitempty"`
	GPUMemoryFreeGB float64 `json:"gpu_memory_free_gb,omitempty"`
	Status          string  `json:"status"`
	Timestamp       int64   `json:"timestamp"`
}

// envelope is the signed datagram body: the heartbeat plus its HMAC.
type envelope struct {
	Heartbeat heartbeatBody `json:"heartbeat"`
	Sig       string        `json:"sig"`
}
