// Package bitstats implements deterministic bit-level statistics over fixed
// width frame bodies: the absolute TAV (total number of value transitions
// per bit position) and the BCOT metric (Pearson correlation between
// smoothed flip series of adjacent bit positions, used to detect related
// bit groups).
//
// Inputs are frame bodies packed little-endian into uint64 values, one per
// frame, in capture order. Both metrics are order-sensitive: reordering the
// input changes the result.
package bitstats

import (
	"errors"
	"fmt"
	"math"
)

// Free parameters of the BCOT smoothing step. The sample cap bounds the
// cost on very large captures; the window follows from the capped sample
// count with a fixed floor.
const (
	maxCorrelationSamples = 64 * 1024
	windowDivisor         = 200
	minWindow             = 64
)

// ErrBitWidth is returned when the declared bit width is outside [1, 64].
var ErrBitWidth = errors.New("bit width must be between 1 and 64 bits")

func validateBitWidth(bitWidth int) error {
	if bitWidth < 1 || bitWidth > 64 {
		return fmt.Errorf("%w: got %d", ErrBitWidth, bitWidth)
	}
	return nil
}

// CountBitFlips returns, for each bit position below bitWidth, the number
// of adjacent-pair transitions in values where that bit changed.
func CountBitFlips(values []uint64, bitWidth int) ([]uint64, error) {
	if err := validateBitWidth(bitWidth); err != nil {
		return nil, err
	}
	counts := make([]uint64, bitWidth)
	for i := 0; i+1 < len(values); i++ {
		diff := values[i] ^ values[i+1]
		for bit := 0; bit < bitWidth; bit++ {
			counts[bit] += diff >> uint(bit) & 1
		}
	}
	return counts, nil
}

// BitFlipCorrelation returns the Pearson correlation between the smoothed
// flip series of each pair of adjacent bit positions. Entry i correlates
// bit i with bit i+1, so the result has bitWidth-1 entries.
//
// The flip series of a bit is its 0/1 column in the adjacent-pair XOR
// series of values, smoothed by a full boxcar convolution of window length
// max(sampleCount/200, 64). Samples beyond the cap are ignored.
//
// Entries are NaN when either smoothed series of a pair has zero variance,
// e.g. when one of the bits never flips; a NaN entry means the correlation
// is undefined, never zero.
func BitFlipCorrelation(values []uint64, bitWidth int) ([]float64, error) {
	if err := validateBitWidth(bitWidth); err != nil {
		return nil, err
	}

	if len(values) > maxCorrelationSamples {
		values = values[:maxCorrelationSamples]
	}
	window := len(values) / windowDivisor
	if window < minWindow {
		window = minWindow
	}

	correlation := make([]float64, bitWidth-1)

	if len(values) < 2 {
		// No transitions at all: every pairwise correlation is undefined.
		for i := range correlation {
			correlation[i] = math.NaN()
		}
		return correlation, nil
	}

	diffs := make([]uint64, len(values)-1)
	for i := range diffs {
		diffs[i] = values[i] ^ values[i+1]
	}

	smoothed := make([][]float64, bitWidth)
	for bit := 0; bit < bitWidth; bit++ {
		smoothed[bit] = boxcar(diffs, uint(bit), window)
	}
	for bit := 0; bit+1 < bitWidth; bit++ {
		correlation[bit] = pearson(smoothed[bit], smoothed[bit+1])
	}
	return correlation, nil
}

// boxcar convolves the 0/1 series of one bit column with an all-ones kernel
// of the given window length, in full mode: the output has
// len(diffs)+window-1 entries and includes the ramp-up and ramp-down edges.
func boxcar(diffs []uint64, bit uint, window int) []float64 {
	n := len(diffs)
	prefix := make([]int, n+1)
	for i, d := range diffs {
		prefix[i+1] = prefix[i] + int(d>>bit&1)
	}

	out := make([]float64, n+window-1)
	for k := range out {
		lo := k - window + 1
		if lo < 0 {
			lo = 0
		}
		hi := k
		if hi > n-1 {
			hi = n - 1
		}
		out[k] = float64(prefix[hi+1] - prefix[lo])
	}
	return out
}

// pearson computes the correlation coefficient of two equal-length series.
// Returns NaN when either series has zero variance.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}
