package plan_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/plan"
)

func TestPlan_TrialEnd(t *testing.T) {
	p := plan.Plan{TrialPeriodDays: 14}
	start := calendar.Date(2015, 5, 20)

	end := p.TrialEnd(start)
	if end == nil {
		t.Fatal("expected trial end")
	}
	if !end.Equal(calendar.Date(2015, 6, 2)) {
		t.Errorf("trial end = %v, want 2015-06-02", end)
	}

	p.TrialPeriodDays = 0
	if p.TrialEnd(start) != nil {
		t.Error("expected nil trial end for plan without trial")
	}
}

func TestPlan_EligibleAt(t *testing.T) {
	p := plan.Plan{GenerateAfter: 2 * time.Hour}
	got := p.EligibleAt(calendar.Date(2015, 5, 31))
	want := time.Date(2015, 6, 1, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EligibleAt = %v, want %v", got, want)
	}
}

func TestMeteredFeature_Overage(t *testing.T) {
	f := plan.MeteredFeature{
		IncludedUnits:            decimal.NewFromInt(100),
		IncludedUnitsDuringTrial: decimal.NewFromInt(10),
	}

	if got := f.Overage(decimal.NewFromInt(130)); got.String() != "30" {
		t.Errorf("Overage = %s, want 30", got)
	}
	if got := f.Overage(decimal.NewFromInt(90)); !got.IsZero() {
		t.Errorf("Overage below allowance = %s, want 0", got)
	}
	if got := f.TrialOverage(decimal.NewFromInt(25)); got.String() != "15" {
		t.Errorf("TrialOverage = %s, want 15", got)
	}
}
