package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/homie/pkg/discovery"
)

func peer(name string, status discovery.Status, ramFree, cpuUsed float64, hasGPU bool) discovery.Peer {
	return discovery.Peer{
		Name:           name,
		Status:         status,
		RAMFreeGB:      ramFree,
		CPUPercentUsed: cpuUsed,
		HasGPU:         hasGPU,
	}
}

func TestSelectSpecificName(t *testing.T) {
	peers := []discovery.Peer{
		peer("a", discovery.StatusBusy, 1, 99, false),
		peer("b", discovery.StatusIdle, 8, 10, false),
	}

	got, err := Select(peers, Constraints{SpecificName: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
}

func TestSelectSpecificNameNotFound(t *testing.T) {
	_, err := Select(nil, Constraints{SpecificName: "ghost"})
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestSelectFiltersBusyAndGPU(t *testing.T) {
	peers := []discovery.Peer{
		peer("busy", discovery.StatusBusy, 32, 5, true),
		peer("no-gpu", discovery.StatusIdle, 32, 5, false),
		peer("gpu", discovery.StatusIdle, 8, 5, true),
	}

	got, err := Select(peers, Constraints{RequireGPU: true})
	require.NoError(t, err)
	assert.Equal(t, "gpu", got.Name)
}

func TestSelectNoAvailablePeers(t *testing.T) {
	peers := []discovery.Peer{
		peer("busy", discovery.StatusBusy, 32, 5, false),
	}

	_, err := Select(peers, Constraints{})
	assert.ErrorIs(t, err, ErrNoAvailablePeers)
}

func TestSelectScoresHighestFreeRAM(t *testing.T) {
	peers := []discovery.Peer{
		peer("small", discovery.StatusIdle, 4, 0, false),
		peer("big", discovery.StatusIdle, 16, 0, false),
	}

	got, err := Select(peers, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, "big", got.Name)
}

func TestScoreAppliesGPUBonus(t *testing.T) {
	withGPU := peer("gpu", discovery.StatusIdle, 10, 0, true)
	withoutGPU := peer("plain", discovery.StatusIdle, 10, 0, false)

	assert.Greater(t, Score(withGPU, true), Score(withoutGPU, true))
	assert.Equal(t, Score(withGPU, false), Score(withoutGPU, false))
}
