package pricing

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name           string
		amountCents    int64
		feeRate        float64
		wantCommission int64
		wantAffiliate  int64
	}{
		{
			name:           "default fee on round amount",
			amountCents:    10000,
			feeRate:        0.05,
			wantCommission: 500,
			wantAffiliate:  9500,
		},
		{
			name:           "zero amount",
			amountCents:    0,
			feeRate:        0.05,
			wantCommission: 0,
			wantAffiliate:  0,
		},
		{
			name:           "zero fee rate",
			amountCents:    10000,
			feeRate:        0,
			wantCommission: 0,
			wantAffiliate:  10000,
		},
		{
			name:           "full fee rate",
			amountCents:    10000,
			feeRate:        1,
			wantCommission: 10000,
			wantAffiliate:  0,
		},
		{
			name:           "rounding up",
			amountCents:    1050, // 10.50 * 0.05 = 0.525 -> 0.53
			feeRate:        0.05,
			wantCommission: 53,
			wantAffiliate:  997,
		},
		{
			name:           "rounding down",
			amountCents:    1030, // 10.30 * 0.05 = 0.515 -> 0.52 (округление от половины вверх)
			feeRate:        0.05,
			wantCommission: 52,
			wantAffiliate:  978,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commission, affiliate, err := Split(tt.amountCents, tt.feeRate)
			if err != nil {
				t.Fatalf("Split error: %v", err)
			}
			if commission != tt.wantCommission {
				t.Fatalf("commission = %d, want %d", commission, tt.wantCommission)
			}
			if affiliate != tt.wantAffiliate {
				t.Fatalf("affiliate = %d, want %d", affiliate, tt.wantAffiliate)
			}
		})
	}
}

func TestSplit_PartsAlwaysSumToAmount(t *testing.T) {
	rates := []float64{0, 0.01, 0.05, 0.1, 0.15, 0.33, 0.5, 0.99, 1}

	for amount := int64(0); amount <= 25000; amount += 7 {
		for _, rate := range rates {
			commission, affiliate, err := Split(amount, rate)
			if err != nil {
				t.Fatalf("Split(%d, %v) error: %v", amount, rate, err)
			}
			if commission+affiliate != amount {
				t.Fatalf("Split(%d, %v): commission %d + affiliate %d != amount", amount, rate, commission, affiliate)
			}
			if commission < 0 || affiliate < 0 {
				t.Fatalf("Split(%d, %v): negative part: %d, %d", amount, rate, commission, affiliate)
			}
		}
	}
}

func TestSplit_InvalidInput(t *testing.T) {
	if _, _, err := Split(-1, 0.05); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if _, _, err := Split(100, -0.01); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("expected ErrInvalidFeeRate for negative rate, got %v", err)
	}
	if _, _, err := Split(100, 1.01); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("expected ErrInvalidFeeRate for rate above 1, got %v", err)
	}
}
