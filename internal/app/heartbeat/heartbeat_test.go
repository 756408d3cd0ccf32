package heartbeat

import (
	"testing"
	"time"

	"github.com/Iron-Ham/loopbridge/internal/app"
	"github.com/Iron-Ham/loopbridge/internal/testutil"
)

func TestOnInitialize_InvalidInterval(t *testing.T) {
	ctx := testutil.NewAppContext()
	a := New(ctx, Config{Interval: 0})

	if a.OnInitialize() {
		t.Fatal("OnInitialize() = true for zero interval")
	}
	// Destroy after a failed init must not wait on a ticker that never ran.
	a.InvokeOnDestroy()
}

func TestBeats_RunOnLoopThread(t *testing.T) {
	ctx := testutil.NewAppContext()
	a := New(ctx, Config{Interval: time.Millisecond})
	if !a.OnInitialize() {
		t.Fatal("OnInitialize() = false")
	}
	defer a.InvokeOnDestroy()

	testutil.WaitFor(t, "queued beats", func() bool { return ctx.Pending() >= 3 })
	if a.Beats() != 0 {
		t.Errorf("Beats() = %d before the loop ran anything", a.Beats())
	}

	ran := ctx.RunPending()
	if got := a.Beats(); got != int64(ran) {
		t.Errorf("Beats() = %d, want %d", got, ran)
	}
}

func TestMaxBeats_QuitsOnce(t *testing.T) {
	ctx := testutil.NewAppContext()
	a := New(ctx, Config{Interval: time.Millisecond, MaxBeats: 2})
	if !a.OnInitialize() {
		t.Fatal("OnInitialize() = false")
	}
	defer a.InvokeOnDestroy()

	testutil.WaitFor(t, "beat limit", func() bool {
		ctx.RunPending()
		return a.Beats() >= 4
	})
	if ctx.Quits() != 1 {
		t.Errorf("Quits() = %d, want 1", ctx.Quits())
	}
}

func TestInvokeOnDestroy_StaleBeatsIgnored(t *testing.T) {
	ctx := testutil.NewAppContext()
	a := New(ctx, Config{Interval: time.Millisecond})
	if !a.OnInitialize() {
		t.Fatal("OnInitialize() = false")
	}
	testutil.WaitFor(t, "queued beat", func() bool { return ctx.Pending() > 0 })

	a.InvokeOnDestroy()
	ctx.RunPending()
	if a.Beats() != 0 {
		t.Errorf("Beats() = %d after destroy, want 0", a.Beats())
	}
}

func TestTicker_StopsWhenContextCloses(t *testing.T) {
	ctx := testutil.NewAppContext()
	ctx.Close()

	a := New(ctx, Config{Interval: time.Millisecond})
	if !a.OnInitialize() {
		t.Fatal("OnInitialize() = false")
	}
	select {
	case <-a.done:
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("ticker kept running after the context stopped accepting work")
	}
	a.InvokeOnDestroy()
}

func TestRegisteredByDefault(t *testing.T) {
	if _, err := app.GetCreator(ID); err != nil {
		t.Errorf("GetCreator(%q) = %v", ID, err)
	}
}
