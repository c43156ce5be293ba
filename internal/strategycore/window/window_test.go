package window

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ClampsCapacity(t *testing.T) {
	assert.Equal(t, MinCapacity, New(10, 5).Cap())
	assert.Equal(t, MaxCapacity, New(50000, 5).Cap())
	w := New(500, 0)
	assert.Equal(t, 500, w.Cap())
	assert.Equal(t, 1, w.MinReady())
	assert.Equal(t, 500, New(500, 9999).MinReady())
}

func TestPush_FIFOEviction(t *testing.T) {
	w := New(MinCapacity, 10)
	// 先推一条命中，然后推满容量的未命中，命中应被淘汰
	w.Push(50, true)
	for i := 0; i < MinCapacity; i++ {
		w.Push(1, false)
	}
	require.Equal(t, MinCapacity, w.Len())
	assert.Equal(t, 0, w.Wins())
	assert.InDelta(t, float64(MinCapacity)/100, w.Expected(), 1e-9)

	entries := w.Entries()
	require.Len(t, entries, MinCapacity)
	for _, e := range entries {
		assert.False(t, e.Won)
	}
	// 连败计数不受淘汰影响
	assert.Equal(t, MinCapacity, w.BetsSinceWin())
}

func TestEntries_Order(t *testing.T) {
	w := New(MinCapacity, 1)
	for i := 0; i < MinCapacity+5; i++ {
		w.Push(float64(i%100)+0.5, false)
	}
	entries := w.Entries()
	require.Len(t, entries, MinCapacity)
	assert.Equal(t, 5.5, entries[0].Probability)
	assert.Equal(t, float64((MinCapacity+4)%100)+0.5, entries[len(entries)-1].Probability)
}

func TestZScore(t *testing.T) {
	w := New(MinCapacity, 50)
	assert.Equal(t, 0.0, w.ZScore())

	// 100 注 × 10% => λ = 10；命中 4 次 => z = (4-10)/sqrt(10)
	for i := 0; i < 100; i++ {
		w.Push(10, i%25 == 0)
	}
	assert.InDelta(t, 10.0, w.Expected(), 1e-9)
	assert.Equal(t, 4, w.Wins())
	assert.InDelta(t, (4-10)/math.Sqrt(10), w.ZScore(), 1e-9)
}

func TestColdRatio(t *testing.T) {
	w := New(MinCapacity, 1)
	w.Push(2, true)
	for i := 0; i < 75; i++ {
		w.Push(2, false)
	}
	// 参考胜率 2% => 期望等待 50 注；75/50 = 1.5
	assert.InDelta(t, 1.5, w.ColdRatio(2), 1e-9)
	assert.Equal(t, 0.0, w.ColdRatio(0))

	w.Push(2, true)
	assert.Equal(t, 0, w.BetsSinceWin())
}

func TestEvaluate_ReadyGate(t *testing.T) {
	th := Thresholds{ZScore: -2, ColdRatio: 1.5, ReferenceProbability: 2}
	w := New(MinCapacity, 50)
	for i := 0; i < 49; i++ {
		w.Push(2, false)
	}
	s := w.Evaluate(th)
	assert.False(t, s.Ready)
	assert.False(t, s.Open())
	assert.False(t, s.ColdOpen)

	w.Push(2, false)
	s = w.Evaluate(th)
	assert.True(t, s.Ready)
	// λ = 1, z = -1 不够；连败比 50/50 = 1 不够
	assert.InDelta(t, -1.0, s.ZScore, 1e-9)
	assert.False(t, s.Open())

	for i := 0; i < 30; i++ {
		w.Push(2, false)
	}
	s = w.Evaluate(th)
	// 连败比 80/50 = 1.6 > 1.5
	assert.True(t, s.ColdOpen)
	assert.True(t, s.Open())
}

func TestEvaluate_ZOpens(t *testing.T) {
	th := Thresholds{ZScore: -2, ColdRatio: 0, ReferenceProbability: 2}
	w := New(MinCapacity, 50)
	// 200 注 × 10%：λ = 20，命中 5 => z ≈ -3.35
	for i := 0; i < 200; i++ {
		w.Push(10, i%40 == 39)
	}
	s := w.Evaluate(th)
	assert.True(t, s.ZOpen)
	assert.False(t, s.ColdOpen, "cold ratio threshold 0 disables the signal")
	assert.True(t, s.Open())
}

func TestResum_NoDrift(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	w := New(MinCapacity, 1)
	for i := 0; i < resumInterval*2+17; i++ {
		w.Push(rng.Float64()*98+0.01, rng.Intn(3) == 0)
	}
	sum, wins := 0.0, 0
	for _, e := range w.Entries() {
		sum += e.Probability
		if e.Won {
			wins++
		}
	}
	assert.InDelta(t, sum/100, w.Expected(), 1e-9)
	assert.Equal(t, wins, w.Wins())

	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0.0, w.Expected())
}
