package clock

import (
	"testing"
	"time"
)

func TestFakeClockAfterAdvancesAndRecords(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := Fake(start)

	fired := <-c.After(2 * time.Second)
	if !fired.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("unexpected fire time: %v", fired)
	}
	<-c.After(0)
	c.Advance(time.Minute)

	if got := c.Now(); !got.Equal(start.Add(2*time.Second + time.Minute)) {
		t.Fatalf("unexpected now: %v", got)
	}
	waits := c.Waits()
	if len(waits) != 2 || waits[0] != 2*time.Second || waits[1] != 0 {
		t.Fatalf("unexpected waits: %v", waits)
	}
	if c.TotalWait() != 2*time.Second {
		t.Fatalf("unexpected total wait: %v", c.TotalWait())
	}
}
