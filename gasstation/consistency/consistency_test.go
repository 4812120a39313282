package consistency

import "testing"

func TestCalculateDivergencePercentBothZero(t *testing.T) {
	if got := CalculateDivergencePercent(0, 0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestCalculateDivergencePercentExact(t *testing.T) {
	// |100-80|/100*100 = 20
	if got := CalculateDivergencePercent(100, 80); got != 20 {
		t.Fatalf("expected 20, got %v", got)
	}
}

func TestValidateFlagsOnlyMetricsOverThreshold(t *testing.T) {
	thresholds := Thresholds{CoinCountPercent: 20, TotalBalancePercent: 20}

	r := Validate(100, 79, 100, 90, thresholds)
	if !r.CoinCountExceeds {
		t.Fatal("expected coin count divergence to exceed 20%")
	}
	if r.BalanceExceeds {
		t.Fatal("balance divergence of 10% should not exceed 20% threshold")
	}
}

func TestValidateExactlyAtThresholdDoesNotExceed(t *testing.T) {
	thresholds := Thresholds{CoinCountPercent: 20, TotalBalancePercent: 20}
	r := Validate(100, 80, 100, 100, thresholds)
	if r.CoinCountExceeds {
		t.Fatal("divergence exactly at threshold must not exceed it")
	}
}
