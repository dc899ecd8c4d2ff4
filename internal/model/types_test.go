package model

import "testing"

func TestSegmentCost(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		percent  int
		price    int64
		want     int64
	}{
		{"full price", 15, 100, 200, 3000},
		{"half price", 5, 50, 200, 500},
		{"band floor", 1, 30, 100, 30},
		{"zero quantity", 0, 100, 200, 0},
		{"truncates toward zero", 1, 33, 10, 3}, // 330/100 = 3.3
		{"large order", 5000, 99, 200_00, 99_000_00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentCost(tt.quantity, tt.percent, tt.price)
			if got != tt.want {
				t.Errorf("SegmentCost(%d, %d, %d) = %d, want %d",
					tt.quantity, tt.percent, tt.price, got, tt.want)
			}
		})
	}
}

func TestSegmentCost_SumMatchesCharge(t *testing.T) {
	// Two segments at different prices; the total charged is the sum of the
	// truncated per-segment costs, never a re-rounded grand total.
	price := int64(333)
	a := SegmentCost(5, 50, price) // 832.5 -> 832
	b := SegmentCost(3, 100, price)
	if a != 832 {
		t.Errorf("segment a = %d, want 832", a)
	}
	if b != 999 {
		t.Errorf("segment b = %d, want 999", b)
	}
	if a+b != 1831 {
		t.Errorf("total = %d, want 1831", a+b)
	}
}
