package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartPopulatesLatestImmediately(t *testing.T) {
	p := New(50 * time.Millisecond)
	p.Start()
	defer p.Stop()

	reading := p.Latest()
	assert.GreaterOrEqual(t, reading.RAMTotalGB, 0.0)
}

func TestGPUNameReflectsLatestReading(t *testing.T) {
	p := New(time.Second)
	p.Start()
	defer p.Stop()

	name, has := p.GPUName()
	if !has {
		assert.Equal(t, "", name)
	}
}

func TestSampleCPUPercentFirstCallReturnsZero(t *testing.T) {
	pct, cur, err := sampleCPUPercent(cpuTimes{})
	if err != nil {
		t.Skip("no /proc/stat on this platform")
	}
	assert.Equal(t, 0.0, pct)
	assert.Greater(t, cur.total, uint64(0))
}
