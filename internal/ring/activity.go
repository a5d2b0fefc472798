package ring

import (
	"math"
	"sort"
)

// ChannelActivity reports per-channel variance, mean, and standard deviation
// over a set of sample rows, plus the set of channels whose variance
// exceeds 3x the median variance across all channels (the noise floor).
type ChannelActivity struct {
	Variance       []float64
	Mean           []float64
	Std            []float64
	ActiveChannels []int
}

// ComputeChannelActivity derives a ChannelActivity from rows (each row one
// sample across channels, in receive order). ok is false when rows is empty.
func ComputeChannelActivity(rows [][]float32) (ChannelActivity, bool) {
	if len(rows) == 0 {
		return ChannelActivity{}, false
	}
	nChannels := len(rows[0])
	if nChannels == 0 {
		return ChannelActivity{}, false
	}

	sum := make([]float64, nChannels)
	sumSq := make([]float64, nChannels)
	n := float64(len(rows))

	for _, row := range rows {
		for ch := 0; ch < nChannels && ch < len(row); ch++ {
			v := float64(row[ch])
			sum[ch] += v
			sumSq[ch] += v * v
		}
	}

	mean := make([]float64, nChannels)
	variance := make([]float64, nChannels)
	std := make([]float64, nChannels)
	for ch := 0; ch < nChannels; ch++ {
		mean[ch] = sum[ch] / n
		variance[ch] = sumSq[ch]/n - mean[ch]*mean[ch]
		if variance[ch] < 0 {
			variance[ch] = 0 // guards against float rounding pushing variance slightly negative
		}
		std[ch] = math.Sqrt(variance[ch])
	}

	median := medianOf(variance)
	var active []int
	threshold := 3 * median
	for ch, v := range variance {
		if v > threshold {
			active = append(active, ch)
		}
	}

	return ChannelActivity{Variance: variance, Mean: mean, Std: std, ActiveChannels: active}, true
}

func medianOf(values []float64) float64 {
	cp := make([]float64, len(values))
	copy(cp, values)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 0 {
		return (cp[mid-1] + cp[mid]) / 2
	}
	return cp[mid]
}
