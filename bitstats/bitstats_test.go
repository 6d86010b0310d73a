package bitstats

import (
	"errors"
	"math"
	"testing"
)

func TestCountBitFlips(t *testing.T) {
	tests := []struct {
		name     string
		values   []uint64
		bitWidth int
		want     []uint64
	}{
		{
			name:     "two bit example",
			values:   []uint64{0b00, 0b01, 0b11, 0b10},
			bitWidth: 2,
			want:     []uint64{2, 1},
		},
		{
			name:     "no values",
			values:   nil,
			bitWidth: 4,
			want:     []uint64{0, 0, 0, 0},
		},
		{
			name:     "single value has no transitions",
			values:   []uint64{0xFF},
			bitWidth: 8,
			want:     []uint64{0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:     "constant series",
			values:   []uint64{5, 5, 5, 5},
			bitWidth: 3,
			want:     []uint64{0, 0, 0},
		},
		{
			name:     "alternating full toggle",
			values:   []uint64{0b11, 0b00, 0b11},
			bitWidth: 2,
			want:     []uint64{2, 2},
		},
		{
			name:     "bits above width ignored",
			values:   []uint64{0x00, 0xF0},
			bitWidth: 4,
			want:     []uint64{0, 0, 0, 0},
		},
		{
			name:     "full 64 bit width",
			values:   []uint64{0, math.MaxUint64},
			bitWidth: 64,
			want:     ones(64),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountBitFlips(tt.values, tt.bitWidth)
			if err != nil {
				t.Fatalf("CountBitFlips returned error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d counts, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("bit %d: got %d flips, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func ones(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestCountBitFlips_InvalidWidth(t *testing.T) {
	for _, width := range []int{0, -1, 65} {
		if _, err := CountBitFlips([]uint64{1, 2}, width); !errors.Is(err, ErrBitWidth) {
			t.Errorf("width %d: got %v, want ErrBitWidth", width, err)
		}
	}
}

func TestBitFlipCorrelation_InvalidWidth(t *testing.T) {
	for _, width := range []int{0, 65} {
		if _, err := BitFlipCorrelation([]uint64{1, 2}, width); !errors.Is(err, ErrBitWidth) {
			t.Errorf("width %d: got %v, want ErrBitWidth", width, err)
		}
	}
}

func TestBitFlipCorrelation_TooFewValues(t *testing.T) {
	got, err := BitFlipCorrelation([]uint64{7}, 8)
	if err != nil {
		t.Fatalf("BitFlipCorrelation returned error: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d entries, want 7", len(got))
	}
	for i, r := range got {
		if !math.IsNaN(r) {
			t.Errorf("entry %d = %v, want NaN", i, r)
		}
	}
}

func TestBitFlipCorrelation_IdenticalBits(t *testing.T) {
	// Bits 0 and 1 move in lockstep, so their flip series are identical
	// and the correlation is exactly 1.
	values := make([]uint64, 256)
	for i := range values {
		if i%2 == 1 {
			values[i] = 0b11
		}
	}

	got, err := BitFlipCorrelation(values, 2)
	if err != nil {
		t.Fatalf("BitFlipCorrelation returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if math.Abs(got[0]-1.0) > 1e-12 {
		t.Errorf("correlation = %v, want 1.0", got[0])
	}
}

func TestBitFlipCorrelation_ConstantBitIsNaN(t *testing.T) {
	// Bit 1 never changes; any pair involving it is undefined.
	values := make([]uint64, 256)
	for i := range values {
		values[i] = uint64(i % 2)
	}

	got, err := BitFlipCorrelation(values, 3)
	if err != nil {
		t.Fatalf("BitFlipCorrelation returned error: %v", err)
	}
	if !math.IsNaN(got[0]) {
		t.Errorf("correlation bit0~bit1 = %v, want NaN", got[0])
	}
	if !math.IsNaN(got[1]) {
		t.Errorf("correlation bit1~bit2 = %v, want NaN", got[1])
	}
}

func TestBitFlipCorrelation_OppositeBits(t *testing.T) {
	// Bit 0 flips on every step while bit 1 flips on every other step.
	// Their smoothed series still co-vary positively but not perfectly.
	values := make([]uint64, 512)
	for i := range values {
		values[i] = uint64(i % 4)
	}

	got, err := BitFlipCorrelation(values, 2)
	if err != nil {
		t.Fatalf("BitFlipCorrelation returned error: %v", err)
	}
	if math.IsNaN(got[0]) {
		t.Fatal("correlation should be defined when both bits flip")
	}
	if got[0] < -1.0 || got[0] > 1.0 {
		t.Errorf("correlation = %v, outside [-1, 1]", got[0])
	}
}

func TestBitFlipCorrelation_SampleCap(t *testing.T) {
	// Values beyond the cap must not affect the result.
	capped := make([]uint64, maxCorrelationSamples)
	for i := range capped {
		capped[i] = uint64(i % 4)
	}
	extended := make([]uint64, maxCorrelationSamples+1000)
	copy(extended, capped)
	for i := maxCorrelationSamples; i < len(extended); i++ {
		extended[i] = 0b11
	}

	a, err := BitFlipCorrelation(capped, 2)
	if err != nil {
		t.Fatalf("BitFlipCorrelation returned error: %v", err)
	}
	b, err := BitFlipCorrelation(extended, 2)
	if err != nil {
		t.Fatalf("BitFlipCorrelation returned error: %v", err)
	}
	if a[0] != b[0] {
		t.Errorf("capped = %v, extended = %v; samples beyond the cap leaked in", a[0], b[0])
	}
}

func TestBoxcar_FullModeLength(t *testing.T) {
	diffs := []uint64{1, 0, 1, 1}
	window := 3

	out := boxcar(diffs, 0, window)
	if len(out) != len(diffs)+window-1 {
		t.Fatalf("len = %d, want %d", len(out), len(diffs)+window-1)
	}
	// Full-mode convolution of [1 0 1 1] with [1 1 1].
	want := []float64{1, 1, 2, 2, 2, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestPearson(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{2, 4, 6, 8}
	if r := pearson(a, b); math.Abs(r-1.0) > 1e-12 {
		t.Errorf("pearson(a, 2a) = %v, want 1", r)
	}

	c := []float64{4, 3, 2, 1}
	if r := pearson(a, c); math.Abs(r+1.0) > 1e-12 {
		t.Errorf("pearson(a, reversed) = %v, want -1", r)
	}

	flat := []float64{5, 5, 5, 5}
	if r := pearson(a, flat); !math.IsNaN(r) {
		t.Errorf("pearson with zero variance = %v, want NaN", r)
	}
}
