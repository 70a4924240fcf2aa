package quota_test

import (
	"testing"
	"time"

	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/domain/quota"
)

func TestDecide_ConsumesUnderLimit(t *testing.T) {
	res := quota.Decide(4, 5)
	if res.Outcome != quota.Consumed {
		t.Error("expected consumption at count below limit")
	}
	if res.Count != 5 {
		t.Errorf("count = %d, want 5", res.Count)
	}
}

func TestDecide_ExceedsAtLimit(t *testing.T) {
	res := quota.Decide(5, 5)
	if res.Outcome != quota.Exceeded {
		t.Error("expected denial at limit")
	}
	if res.Count != 5 {
		t.Errorf("count = %d, want unchanged 5", res.Count)
	}
}

func TestDecide_ConsumedCountNeverExceedsLimit(t *testing.T) {
	// Walk a full day's budget; the L+1th attempt must fail.
	limit := 5
	count := 0
	for i := 0; i < limit; i++ {
		res := quota.Decide(count, limit)
		if res.Outcome != quota.Consumed {
			t.Fatalf("attempt %d denied unexpectedly", i+1)
		}
		count = res.Count
		if count > limit {
			t.Fatalf("count %d exceeded limit %d", count, limit)
		}
	}
	if res := quota.Decide(count, limit); res.Outcome != quota.Exceeded {
		t.Error("attempt past the budget was not denied")
	}
}

func TestDecide_ZeroLimitDeniesEverything(t *testing.T) {
	if res := quota.Decide(0, 0); res.Outcome != quota.Exceeded {
		t.Error("zero limit should deny the first attempt")
	}
}

func TestDecide_UnlimitedAlwaysConsumes(t *testing.T) {
	res := quota.Decide(1_000_000, plan.Unlimited)
	if res.Outcome != quota.Consumed {
		t.Error("unlimited plan was denied")
	}
}

func TestDayOf_UTCRollover(t *testing.T) {
	beforeMidnight := time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC)
	afterMidnight := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	if quota.DayOf(beforeMidnight) == quota.DayOf(afterMidnight) {
		t.Error("UTC midnight did not roll the day period")
	}
	if quota.DayOf(beforeMidnight) != "2025-03-10" {
		t.Errorf("day = %q, want 2025-03-10", quota.DayOf(beforeMidnight))
	}
}

func TestDayOf_NormalizesZone(t *testing.T) {
	// 23:00 in UTC-2 is 01:00 next day UTC.
	zone := time.FixedZone("UTC-2", -2*3600)
	local := time.Date(2025, 3, 10, 23, 0, 0, 0, zone)

	if quota.DayOf(local) != "2025-03-11" {
		t.Errorf("day = %q, want 2025-03-11", quota.DayOf(local))
	}
}

func TestHourOf(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	if quota.HourOf(at) != "2025-03-10T14" {
		t.Errorf("hour = %q, want 2025-03-10T14", quota.HourOf(at))
	}
}

func TestRetention(t *testing.T) {
	day := quota.DayOf(time.Now())
	hour := quota.HourOf(time.Now())

	if day.Retention() != 48*time.Hour {
		t.Errorf("day retention = %v, want 48h", day.Retention())
	}
	if hour.Retention() != 2*time.Hour {
		t.Errorf("hour retention = %v, want 2h", hour.Retention())
	}
}

func TestKey(t *testing.T) {
	got := quota.Key("tenant-1", plan.ActivityRefreshes, "2025-03-10")
	want := "quota:tenant-1:refreshes:2025-03-10"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestHourlySubLimit(t *testing.T) {
	tests := []struct {
		daily int
		want  int
	}{
		{5, 1},    // floor(5/4)=1
		{3, 1},    // minimum of one
		{200, 50}, // quarter of the budget
		{0, 0},    // disabled
		{plan.Unlimited, 0},
	}
	for _, tt := range tests {
		if got := quota.HourlySubLimit(tt.daily); got != tt.want {
			t.Errorf("HourlySubLimit(%d) = %d, want %d", tt.daily, got, tt.want)
		}
	}
}

func TestStatusOf(t *testing.T) {
	st := quota.StatusOf(3, 5)
	if st.Remaining != 2 || st.Unlimited {
		t.Errorf("status = %+v, want remaining 2", st)
	}

	over := quota.StatusOf(7, 5)
	if over.Remaining != 0 {
		t.Errorf("overused remaining = %d, want 0", over.Remaining)
	}

	unlimited := quota.StatusOf(10, plan.Unlimited)
	if !unlimited.Unlimited || unlimited.Remaining != plan.Unlimited {
		t.Errorf("unlimited status = %+v", unlimited)
	}
}
