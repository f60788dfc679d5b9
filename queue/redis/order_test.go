package redis

import (
	"testing"
	"time"

	"github.com/shopforge/jobcore/queue"
)

func TestOrderCandidates(t *testing.T) {
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	entries := []queue.Entry{
		{JobID: "low", Priority: queue.PriorityLow, ReadyAt: base},
		{JobID: "normal-late", Priority: queue.PriorityNormal, ReadyAt: base.Add(time.Second)},
		{JobID: "urgent", Priority: queue.PriorityUrgent, ReadyAt: base.Add(time.Minute)},
		{JobID: "normal-early", Priority: queue.PriorityNormal, ReadyAt: base},
		{JobID: "normal-early-2", Priority: queue.PriorityNormal, ReadyAt: base, EnqueuedAt: base.Add(time.Millisecond)},
	}

	orderCandidates(entries)

	want := []string{"urgent", "normal-early", "normal-early-2", "normal-late", "low"}
	for i, e := range entries {
		if e.JobID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, e.JobID, want[i])
		}
	}
}

func TestKeys(t *testing.T) {
	q := New(nil, WithPrefix("shop:"))
	if got := q.pendingKey("email.send"); got != "shop:queue:email.send:pending" {
		t.Errorf("pendingKey = %q", got)
	}
	if got := q.activeKey("email.send"); got != "shop:queue:email.send:active" {
		t.Errorf("activeKey = %q", got)
	}
	if got := q.entryKey("job_01"); got != "shop:queue:entry:job_01" {
		t.Errorf("entryKey = %q", got)
	}
}
