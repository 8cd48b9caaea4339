package engine

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		away       float64
		home       float64
		wantAway   int
		wantHome   int
		shouldFail bool
	}{
		{
			name:     "already summing to 100",
			away:     60,
			home:     40,
			wantAway: 60,
			wantHome: 40,
		},
		{
			name:     "scaled down proportionally",
			away:     150,
			home:     50,
			wantAway: 75,
			wantHome: 25,
		},
		{
			name: "remainder goes to smaller raw side home",
			away: 55.3,
			home: 44.8,
			// 55.3/100.1*100 floors to 55, 44.8/100.1*100 floors to 44;
			// the leftover point lands on home, the smaller raw value.
			wantAway: 55,
			wantHome: 45,
		},
		{
			name:     "remainder goes to smaller raw side away",
			away:     44.8,
			home:     55.3,
			wantAway: 45,
			wantHome: 55,
		},
		{
			name:     "thirds floor then top up smaller",
			away:     1,
			home:     2,
			wantAway: 34,
			wantHome: 66,
		},
		{
			name:     "thirds reversed",
			away:     2,
			home:     1,
			wantAway: 66,
			wantHome: 34,
		},
		{
			name:     "exact tie splits evenly",
			away:     37.5,
			home:     37.5,
			wantAway: 50,
			wantHome: 50,
		},
		{
			name:     "one side zero keeps zero",
			away:     0,
			home:     80,
			wantAway: 0,
			wantHome: 100,
		},
		{
			name:       "negative input",
			away:       -1,
			home:       50,
			shouldFail: true,
		},
		{
			name:       "both zero",
			away:       0,
			home:       0,
			shouldFail: true,
		},
		{
			name:       "NaN input",
			away:       math.NaN(),
			home:       50,
			shouldFail: true,
		},
		{
			name:       "infinite input",
			away:       math.Inf(1),
			home:       50,
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAway, gotHome, err := Normalize(tt.away, tt.home)

			if tt.shouldFail {
				if err == nil {
					t.Errorf("Normalize(%v, %v) expected error, got (%d, %d)", tt.away, tt.home, gotAway, gotHome)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%v, %v) unexpected error: %v", tt.away, tt.home, err)
			}
			if gotAway != tt.wantAway || gotHome != tt.wantHome {
				t.Errorf("Normalize(%v, %v) = (%d, %d), want (%d, %d)",
					tt.away, tt.home, gotAway, gotHome, tt.wantAway, tt.wantHome)
			}
		})
	}
}

func TestNormalizeInvariants(t *testing.T) {
	// Any valid input must come back as two non-negative integers summing
	// to exactly 100, whatever the raw scale.
	inputs := [][2]float64{
		{52.5, 49.5},
		{0.07, 0.93},
		{1234.5, 8765.4},
		{99.99, 0.01},
		{33.3, 66.6},
		{0.5, 0.5},
		{7, 11},
	}

	for _, in := range inputs {
		a, h, err := Normalize(in[0], in[1])
		if err != nil {
			t.Fatalf("Normalize(%v, %v) unexpected error: %v", in[0], in[1], err)
		}
		if a+h != 100 {
			t.Errorf("Normalize(%v, %v) = (%d, %d), sum %d, want 100", in[0], in[1], a, h, a+h)
		}
		if a < 0 || h < 0 {
			t.Errorf("Normalize(%v, %v) = (%d, %d), want non-negative sides", in[0], in[1], a, h)
		}
	}
}
