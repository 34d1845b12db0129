package cost

import (
	"testing"

	"github.com/shopspring/decimal"
)

func testModel() *Model {
	return NewModel(map[string]decimal.Decimal{
		"gmail":  decimal.RequireFromString("0.0005"),
		"stripe": decimal.RequireFromString("0.001"),
	}, decimal.RequireFromString("0.001"))
}

func TestCompute(t *testing.T) {
	cases := []struct {
		name    string
		organ   string
		size    int64
		secs    string
		want    string
		wantErr bool
	}{
		{
			name:  "base tier both multipliers",
			organ: "gmail",
			size:  500,
			secs:  "1.0",
			want:  "0.0005",
		},
		{
			name:  "large slow response",
			organ: "stripe",
			size:  15000,
			secs:  "6.0",
			want:  "0.00195", // 0.001 × 1.5 × 1.3
		},
		{
			name:  "medium size tier only",
			organ: "gmail",
			size:  5000,
			secs:  "1.0",
			want:  "0.0006", // 0.0005 × 1.2
		},
		{
			name:  "medium time tier only",
			organ: "gmail",
			size:  100,
			secs:  "3.0",
			want:  "0.00055", // 0.0005 × 1.1
		},
		{
			name:  "tiers do not stack: large wins over medium",
			organ: "gmail",
			size:  20000,
			secs:  "0.5",
			want:  "0.00075", // 0.0005 × 1.5, not × 1.5 × 1.2
		},
		{
			name:  "unknown organ uses default rate",
			organ: "wikipedia",
			size:  100,
			secs:  "0.1",
			want:  "0.001",
		},
		{
			name:  "boundary size is not in the higher tier",
			organ: "gmail",
			size:  1000,
			secs:  "0.0",
			want:  "0.0005",
		},
		{
			name:  "boundary time is not in the higher tier",
			organ: "gmail",
			size:  0,
			secs:  "2.0",
			want:  "0.0005",
		},
		{
			name:    "negative size rejected",
			organ:   "gmail",
			size:    -1,
			secs:    "1.0",
			wantErr: true,
		},
		{
			name:    "negative time rejected",
			organ:   "gmail",
			size:    0,
			secs:    "-0.5",
			wantErr: true,
		},
	}

	m := testModel()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Compute(tc.organ, tc.size, decimal.RequireFromString(tc.secs))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	m := testModel()
	first, _ := m.Compute("stripe", 15000, decimal.RequireFromString("6.0"))
	for i := 0; i < 10; i++ {
		again, _ := m.Compute("stripe", 15000, decimal.RequireFromString("6.0"))
		if !again.Equal(first) {
			t.Fatalf("iteration %d: got %s, want %s", i, again, first)
		}
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		scale  int32
		want   int64
	}{
		{"whole planck conversion", "0.0005", 12, 500_000_000},
		{"rounds up to avoid underbilling", "0.0000000000015", 12, 2},
		{"zero stays zero", "0", 12, 0},
		{"scale two", "1.23", 2, 123},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.scale)
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}
