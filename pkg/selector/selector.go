// Package selector picks the best executor for a job: given a live
// peer snapshot and the job's constraints, return the highest-scoring
// candidate.
package selector

import (
	"errors"

	"github.com/cuemby/homie/pkg/discovery"
)

// ErrPeerNotFound is returned when a specific peer name was requested
// but no live peer by that name exists.
var ErrPeerNotFound = errors.New("peer not found")

// ErrNoAvailablePeers is returned when no live peer satisfies the
// idle/GPU constraints.
var ErrNoAvailablePeers = errors.New("no available peers")

// gpuScoreBonus is added to a candidate's score when the job requires a
// GPU and the candidate has one.
const gpuScoreBonus = 2.0

// Constraints narrows the set of acceptable executor peers for a job.
type Constraints struct {
	// SpecificName, if non-empty, forces selection of that exact peer
	// regardless of its status or resources.
	SpecificName string
	RequireGPU   bool
}

// Select returns the best peer in peers satisfying constraints.
func Select(peers []discovery.Peer, constraints Constraints) (discovery.Peer, error) {
	if constraints.SpecificName != "" {
		for _, p := range peers {
			if p.Name == constraints.SpecificName {
				return p, nil
			}
		}
		return discovery.Peer{}, ErrPeerNotFound
	}

	var best discovery.Peer
	bestScore := -1.0
	found := false

	for _, p := range peers {
		if p.Status != discovery.StatusIdle {
			continue
		}
		if constraints.RequireGPU && !p.HasGPU {
			continue
		}

		score := Score(p, constraints.RequireGPU)
		if !found || score > bestScore {
			best = p
			bestScore = score
			found = true
		}
	}

	if !found {
		return discovery.Peer{}, ErrNoAvailablePeers
	}
	return best, nil
}

// Score computes the weighted score for a candidate peer: free RAM
// weighted by spare CPU headroom, plus a flat bonus when the job needs
// a GPU and the candidate has one.
func Score(p discovery.Peer, requireGPU bool) float64 {
	score := p.RAMFreeGB * (100 - p.CPUPercentUsed) / 100
	if requireGPU && p.HasGPU {
		score += gpuScoreBonus
	}
	return score
}
