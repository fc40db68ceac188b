package pdc

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateAlignsToSlowestTrack(t *testing.T) {
	got := Calculate(map[string]int{"a": 0, "b": 512, "c": 2048})
	assert.Equal(t, map[string]int{"a": 2048, "b": 1536, "c": 0}, got)
}

func TestCalculateMaxLatencyTrackGetsZero(t *testing.T) {
	got := Calculate(map[string]int{"x": 100, "y": 3000})
	assert.Equal(t, 0, got["y"])
}

func TestCalculateIdempotent(t *testing.T) {
	in := map[string]int{"a": 64, "b": 128, "c": 256}
	first := Calculate(in)
	second := Calculate(in)
	assert.Equal(t, first, second)
}

func TestCalculateNegativeLatencyTreatedAsZero(t *testing.T) {
	got := Calculate(map[string]int{"a": -50, "b": 100})
	assert.Equal(t, 100, got["a"])
	assert.Equal(t, 0, got["b"])
}

func TestChainLatencySkipsBypassedStages(t *testing.T) {
	chain := Chain{
		{Name: "eq", Latency: 64},
		{Name: "comp", Latency: 512, Bypassed: true},
		{Name: "limiter", Latency: 128},
	}
	assert.Equal(t, 192, chain.Latency())
}

func TestCalculatorRebuildOnChainChange(t *testing.T) {
	c := NewCalculator()
	c.SetChain("drums", Chain{})
	c.SetChain("bass", Chain{{Name: "amp", Latency: 512}})
	c.SetChain("vox", Chain{{Name: "pitch", Latency: 2048}})

	assert.Equal(t, 2048, c.Delay("drums"))
	assert.Equal(t, 1536, c.Delay("bass"))
	assert.Equal(t, 0, c.Delay("vox"))

	// Bypassing the slowest stage reshuffles the whole table.
	c.SetBypassed("vox", "pitch", true)
	assert.Equal(t, 0, c.Delay("bass"))
	assert.Equal(t, 512, c.Delay("drums"))
	assert.Equal(t, 512, c.Delay("vox"))
}

func TestCalculatorDisabledForcesZero(t *testing.T) {
	c := NewCalculator()
	c.SetChain("a", Chain{{Name: "fx", Latency: 1000}})
	c.SetChain("b", Chain{})
	c.SetEnabled(false)
	assert.Equal(t, 0, c.Delay("a"))
	assert.Equal(t, 0, c.Delay("b"))
	c.SetEnabled(true)
	assert.Equal(t, 1000, c.Delay("b"))
}

func TestCalculatorMissingTrackAlignsAsZeroLatency(t *testing.T) {
	c := NewCalculator()
	c.SetChain("slow", Chain{{Name: "fx", Latency: 777}})
	// A track the table has never seen is treated as zero latency and
	// receives the full max delay.
	assert.Equal(t, 777, c.Delay("unknown"))
}

func TestCalculatorRemoveTrack(t *testing.T) {
	c := NewCalculator()
	c.SetChain("a", Chain{{Name: "fx", Latency: 300}})
	c.SetChain("b", Chain{})
	require.Equal(t, 300, c.Delay("b"))
	c.RemoveTrack("a")
	assert.Equal(t, 0, c.Delay("b"))
}

// Output alignment: start + compensation + latency must be identical across
// tracks for a common start time.
func TestOutputTimesAlign(t *testing.T) {
	lat := map[string]int{"a": 0, "b": 512, "c": 2048}
	comp := Calculate(lat)
	const start = int64(96000)
	want := start + int64(lat["c"])
	for id := range lat {
		got := start + int64(comp[id]) + int64(lat[id])
		require.Equal(t, want, got, "track %s misaligned", id)
	}
}

func TestCompensationTableGolden(t *testing.T) {
	table := Calculate(map[string]int{"drums": 0, "bass": 512, "vox": 2048})
	data, err := json.MarshalIndent(table, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t)
	g.Assert(t, "compensation_table", data)
}
