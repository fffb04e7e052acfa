package indicators

import (
	"math/rand"
	"testing"

	"FinChart/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closesOf(values ...float64) []models.Point {
	out := make([]models.Point, len(values))
	for i, v := range values {
		out[i] = models.Point{Time: int64(1000 + i*60), Value: v}
	}
	return out
}

func randomCloses(rng *rand.Rand, n int) []models.Point {
	vals := make([]float64, n)
	p := 100.0
	for i := range vals {
		p += rng.Float64()*4 - 2
		if p < 1 {
			p = 1
		}
		vals[i] = p
	}
	return closesOf(vals...)
}

func TestMovingAverageScenario(t *testing.T) {
	closes := closesOf(10, 12, 11, 13, 12, 14, 15, 13, 16, 15, 17, 16, 18, 17, 19)

	ma := MovingAverage(closes, 5)

	require.Len(t, ma, 11)
	assert.InDelta(t, 11.6, ma[0].Value, 1e-9)
	assert.Equal(t, closes[4].Time, ma[0].Time)
	assert.InDelta(t, 17.4, ma[10].Value, 1e-9)
	assert.Equal(t, closes[14].Time, ma[10].Time)
}

func TestMovingAverageLength(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, size := range []int{0, 1, 4, 5, 6, 50} {
		closes := randomCloses(rng, size)
		for _, n := range []int{1, 5, 20} {
			want := size - n + 1
			if want < 0 {
				want = 0
			}
			assert.Len(t, MovingAverage(closes, n), want, "size=%d n=%d", size, n)
		}
	}
	assert.Empty(t, MovingAverage(closesOf(1, 2, 3), 0))
}

func TestRSIBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 20; round++ {
		closes := randomCloses(rng, 30+rng.Intn(100))
		for _, fn := range []func([]models.Point, int) []models.Point{RSI, RSIWilder} {
			out := fn(closes, 14)
			require.Len(t, out, len(closes)-14)
			for _, p := range out {
				assert.GreaterOrEqual(t, p.Value, 0.0)
				assert.LessOrEqual(t, p.Value, 100.0)
			}
		}
	}
}

func TestRSIZeroLoss(t *testing.T) {
	out := RSI(closesOf(1, 2, 3, 4, 5), 3)

	require.Len(t, out, 2)
	// RS is pinned to 100 when there are no losses
	assert.InDelta(t, 100-100.0/101, out[0].Value, 1e-9)
}

func TestRSIAllLoss(t *testing.T) {
	out := RSI(closesOf(5, 4, 3, 2, 1), 3)
	require.Len(t, out, 2)
	assert.InDelta(t, 0, out[0].Value, 1e-9)
}

func TestRSISimpleWindow(t *testing.T) {
	// steps: +2 -1 +2 -1; window 2 => avgGain 1, avgLoss .5 => RS 2 => 66.67
	out := RSI(closesOf(10, 12, 11, 13, 12), 2)
	require.Len(t, out, 3)
	assert.InDelta(t, 100-100.0/3, out[0].Value, 1e-9)
	assert.Equal(t, int64(1000+2*60), out[0].Time)
}

func TestRSIInsufficient(t *testing.T) {
	assert.Empty(t, RSI(closesOf(1, 2, 3), 14))
	assert.Empty(t, RSIWilder(closesOf(1, 2, 3), 14))
}

func TestMACDHistogramIdentity(t *testing.T) {
	closes := randomCloses(rand.New(rand.NewSource(5)), 120)

	m := MACD(closes, 12, 26, 9)

	require.Len(t, m.Line, len(closes)-26+1)
	require.Len(t, m.Signal, len(m.Line)-9+1)
	require.Len(t, m.Histogram, len(m.Signal))

	lineAt := make(map[int64]float64, len(m.Line))
	for _, p := range m.Line {
		lineAt[p.Time] = p.Value
	}
	for i, h := range m.Histogram {
		assert.Equal(t, m.Signal[i].Time, h.Time)
		assert.InDelta(t, lineAt[h.Time]-m.Signal[i].Value, h.Value, 1e-9)
	}
}

func TestMACDInsufficient(t *testing.T) {
	m := MACD(randomCloses(rand.New(rand.NewSource(1)), 20), 12, 26, 9)
	assert.Empty(t, m.Line)
	assert.Empty(t, m.Signal)
	assert.Empty(t, m.Histogram)
}

func TestEngineCompute(t *testing.T) {
	closes := randomCloses(rand.New(rand.NewSource(9)), 40)
	e := NewEngine(Config{MAPeriods: []int{5, 20}})

	set := e.Compute(closes)

	require.Len(t, set.MA, 2)
	assert.Equal(t, "MA(5)", set.MA[0].Name)
	assert.Equal(t, 36, set.MA[0].Len())
	assert.Equal(t, 21, set.MA[1].Len())
	assert.Equal(t, "RSI(14)", set.RSI.Name)
	assert.Equal(t, 26, set.RSI.Len())
	assert.Equal(t, "MACD(12,26,9)", set.MACD.Line.Name)
	assert.Equal(t, 15, set.MACD.Line.Len())
	assert.Equal(t, 7, set.MACD.Histogram.Len())
}

func TestEngineWilder(t *testing.T) {
	closes := randomCloses(rand.New(rand.NewSource(2)), 60)
	e := NewEngine(Config{RSISmoothing: SmoothingWilder})

	assert.Equal(t, RSIWilder(closes, 14), e.Compute(closes).RSI.Points)
	assert.Len(t, e.Compute(closes).MA, len(DefaultMAPeriods))
}
