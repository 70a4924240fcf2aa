package plan_test

import (
	"errors"
	"testing"
	"time"

	"github.com/execgate/execgate/domain/plan"
)

func TestNewTable_RejectsEmpty(t *testing.T) {
	if _, err := plan.NewTable(nil); err == nil {
		t.Error("expected error for empty policy set")
	}
}

func TestNewTable_RejectsDuplicateTier(t *testing.T) {
	policies := []plan.Policy{
		{Tier: plan.TierFree, TTL: time.Minute, RequestsPerMinute: 60},
		{Tier: plan.TierFree, TTL: time.Minute, RequestsPerMinute: 60},
	}
	if _, err := plan.NewTable(policies); err == nil {
		t.Error("expected error for duplicate tier")
	}
}

func TestNewTable_RejectsMissingTTLWithoutBypass(t *testing.T) {
	policies := []plan.Policy{
		{Tier: plan.TierFree, RequestsPerMinute: 60},
	}
	if _, err := plan.NewTable(policies); err == nil {
		t.Error("expected error for zero TTL without cache bypass")
	}
}

func TestNewTable_AllowsMissingTTLWithBypass(t *testing.T) {
	policies := []plan.Policy{
		{Tier: plan.TierEnterprise, RequestsPerMinute: 600, BypassCache: true},
	}
	if _, err := plan.NewTable(policies); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewTable_RejectsInvalidDailyLimit(t *testing.T) {
	policies := []plan.Policy{
		{
			Tier:              plan.TierFree,
			TTL:               time.Minute,
			RequestsPerMinute: 60,
			DailyLimits:       map[plan.ActivityType]int{plan.ActivityRefreshes: -2},
		},
	}
	if _, err := plan.NewTable(policies); err == nil {
		t.Error("expected error for limit below Unlimited")
	}
}

func TestResolve_UnknownTier(t *testing.T) {
	table, err := plan.NewTable(plan.Defaults())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	_, err = table.Resolve("platinum")
	if !errors.Is(err, plan.ErrUnknownTier) {
		t.Errorf("err = %v, want ErrUnknownTier", err)
	}
}

func TestResolve_KnownTier(t *testing.T) {
	table, err := plan.NewTable(plan.Defaults())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	pol, err := table.Resolve(plan.TierFree)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pol.TTL != 30*time.Minute {
		t.Errorf("free TTL = %v, want 30m", pol.TTL)
	}
	if pol.DailyLimit(plan.ActivityRefreshes) != 5 {
		t.Errorf("free refreshes = %d, want 5", pol.DailyLimit(plan.ActivityRefreshes))
	}
}

func TestDailyLimit_MissingActivityIsUnlimited(t *testing.T) {
	pol := plan.Policy{Tier: plan.TierPro}
	if got := pol.DailyLimit(plan.ActivityToggles); got != plan.Unlimited {
		t.Errorf("limit = %d, want Unlimited", got)
	}
}

func TestDefaults_EnterpriseBypassesCache(t *testing.T) {
	table, err := plan.NewTable(plan.Defaults())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	pol, err := table.Resolve(plan.TierEnterprise)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !pol.BypassCache {
		t.Error("enterprise should bypass the cache")
	}
	if pol.DailyLimit(plan.ActivityRefreshes) != plan.Unlimited {
		t.Error("enterprise refreshes should be unlimited")
	}
}
