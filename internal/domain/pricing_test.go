package domain

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func activeDiscount(pct float64) *Discount {
	id := uuid.New()
	return &Discount{
		ID:              uuid.New(),
		Name:            "promo",
		PercentageValue: pct,
		Kind:            DiscountKindUpfront,
		StartDate:       time.Now().Add(-time.Hour),
		EndDate:         time.Now().Add(time.Hour),
		IsActive:        true,
		SoftwareSystemID: &id,
	}
}

func TestComputePrice(t *testing.T) {
	tests := []struct {
		name         string
		upfront      float64
		supportYears int
		discount     *Discount
		returning    bool
		wantBase     float64
		wantFinal    float64
	}{
		{
			name:         "no discounts single year",
			upfront:      2999.99,
			supportYears: 1,
			wantBase:     2999.99,
			wantFinal:    2999.99,
		},
		{
			name:         "support year surcharge",
			upfront:      2999.99,
			supportYears: 3,
			wantBase:     4999.99,
			wantFinal:    4999.99,
		},
		{
			name:         "sequential promotion then returning client",
			upfront:      2999.99,
			supportYears: 2,
			discount:     activeDiscount(15),
			returning:    true,
			wantBase:     3999.99,
			// 3999.99 * 0.85 = 3399.9915, then * 0.95 = 3229.991925
			wantFinal: 3229.99,
		},
		{
			name:         "promotion only",
			upfront:      2999.99,
			supportYears: 2,
			discount:     activeDiscount(15),
			wantBase:     3999.99,
			wantFinal:    3399.99,
		},
		{
			name:         "returning client only",
			upfront:      1000,
			supportYears: 1,
			returning:    true,
			wantBase:     1000,
			wantFinal:    950,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePrice(tt.upfront, tt.supportYears, tt.discount, tt.returning)
			if !almostEqual(got.BasePrice, tt.wantBase) {
				t.Errorf("BasePrice = %v, want %v", got.BasePrice, tt.wantBase)
			}
			if !almostEqual(got.FinalPrice, tt.wantFinal) {
				t.Errorf("FinalPrice = %v, want %v", got.FinalPrice, tt.wantFinal)
			}
		})
	}
}

func TestComputePriceDiscountBreakdown(t *testing.T) {
	got := ComputePrice(2999.99, 2, activeDiscount(15), true)

	if !almostEqual(got.DiscountPercentage, 15) {
		t.Errorf("DiscountPercentage = %v, want 15", got.DiscountPercentage)
	}
	// 15% of 3999.99
	if !almostEqual(got.DiscountAmount, 600.00) {
		t.Errorf("DiscountAmount = %v, want 600.00", got.DiscountAmount)
	}
	if !got.ReturningClientApplied {
		t.Error("expected returning-client discount to be applied")
	}
	// 5% of 3399.9915 = 169.999575
	if !almostEqual(got.ReturningClientAmount, 170.00) {
		t.Errorf("ReturningClientAmount = %v, want 170.00", got.ReturningClientAmount)
	}
	if got.Discount == nil {
		t.Error("expected applied discount to be referenced")
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(3229.991925); got != 3229.99 {
		t.Errorf("Round2(3229.991925) = %v, want 3229.99", got)
	}
	if got := Round2(169.999575); got != 170.0 {
		t.Errorf("Round2(169.999575) = %v, want 170.0", got)
	}
}
