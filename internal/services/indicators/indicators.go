// Package indicators computes moving averages, RSI and MACD from a close
// series. Every function is pure: insufficient history yields an empty
// series, never an error.
package indicators

import (
	"fmt"

	"FinChart/internal/domain/models"
)

// MovingAverage returns the simple moving average of the trailing n closes.
// The output has max(0, len(closes)-n+1) points; each carries the time of the
// last close in its window.
func MovingAverage(closes []models.Point, n int) []models.Point {
	if n <= 0 || len(closes) < n {
		return []models.Point{}
	}
	out := make([]models.Point, 0, len(closes)-n+1)
	sum := 0.0
	for i, p := range closes {
		sum += p.Value
		if i >= n {
			sum -= closes[i-n].Value
		}
		if i >= n-1 {
			out = append(out, models.Point{Time: p.Time, Value: sum / float64(n)})
		}
	}
	return out
}

// RSI computes the relative strength index with simple means of gains and
// losses over each window of n steps. When the average loss is zero RS is
// taken as 100, so an all-gain window reads ~99.01 rather than 100.
func RSI(closes []models.Point, n int) []models.Point {
	if n <= 0 || len(closes) <= n {
		return []models.Point{}
	}
	gains, losses := steps(closes)

	out := make([]models.Point, 0, len(closes)-n)
	var sumGain, sumLoss float64
	for i := range gains {
		sumGain += gains[i]
		sumLoss += losses[i]
		if i >= n {
			sumGain -= gains[i-n]
			sumLoss -= losses[i-n]
		}
		if i >= n-1 {
			out = append(out, models.Point{
				Time:  closes[i+1].Time,
				Value: rsiValue(sumGain/float64(n), sumLoss/float64(n)),
			})
		}
	}
	return out
}

// RSIWilder is the textbook RSI: the first averages are simple means, later
// ones use Wilder's smoothing avg = (prev*(n-1) + x) / n.
func RSIWilder(closes []models.Point, n int) []models.Point {
	if n <= 0 || len(closes) <= n {
		return []models.Point{}
	}
	gains, losses := steps(closes)

	var avgGain, avgLoss float64
	for i := 0; i < n; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)

	out := make([]models.Point, 0, len(closes)-n)
	out = append(out, models.Point{Time: closes[n].Time, Value: rsiValue(avgGain, avgLoss)})
	for i := n; i < len(gains); i++ {
		avgGain = (avgGain*float64(n-1) + gains[i]) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + losses[i]) / float64(n)
		out = append(out, models.Point{Time: closes[i+1].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

func steps(closes []models.Point) (gains, losses []float64) {
	gains = make([]float64, len(closes)-1)
	losses = make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i].Value - closes[i-1].Value
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	return gains, losses
}

func rsiValue(avgGain, avgLoss float64) float64 {
	rs := 100.0
	if avgLoss != 0 {
		rs = avgGain / avgLoss
	}
	v := 100 - 100/(1+rs)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// MACDResult holds the three MACD outputs, all aligned by time.
type MACDResult struct {
	Line      []models.Point
	Signal    []models.Point
	Histogram []models.Point
}

// MACD builds macd = MA(fast) - MA(slow), signal = MA(signal) over macd and
// histogram = macd - signal. Only times present in both operands survive each
// subtraction.
func MACD(closes []models.Point, fast, slow, signal int) MACDResult {
	line := subtract(MovingAverage(closes, fast), MovingAverage(closes, slow))
	sig := MovingAverage(line, signal)
	return MACDResult{
		Line:      line,
		Signal:    sig,
		Histogram: subtract(line, sig),
	}
}

// subtract returns a-b for every time key present in both. Inputs are sorted
// ascending by time.
func subtract(a, b []models.Point) []models.Point {
	out := make([]models.Point, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Time < b[j].Time:
			i++
		case a[i].Time > b[j].Time:
			j++
		default:
			out = append(out, models.Point{Time: a[i].Time, Value: a[i].Value - b[j].Value})
			i++
			j++
		}
	}
	return out
}

func MAName(n int) string { return fmt.Sprintf("MA(%d)", n) }

func RSIName(n int) string { return fmt.Sprintf("RSI(%d)", n) }

func MACDName(fast, slow, signal int) string {
	return fmt.Sprintf("MACD(%d,%d,%d)", fast, slow, signal)
}
