package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/testutil"
)

func TestCleanPlatformIsNotDisabled(t *testing.T) {
	svc := NewService(testutil.TestLogger(t))

	if disabled, _ := svc.IsDisabled(books.PlatformArchiveOrg); disabled {
		t.Error("platform without failures must not be disabled")
	}
}

func TestFailureDisablesWithBackoff(t *testing.T) {
	svc := NewService(testutil.TestLogger(t))

	svc.RecordFailure(books.PlatformZLibrary, errors.New("boom"))

	disabled, till := svc.IsDisabled(books.PlatformZLibrary)
	if !disabled {
		t.Fatal("expected platform disabled after failure")
	}
	if till == nil || !till.After(time.Now()) {
		t.Errorf("disabledTill must be in the future, got %v", till)
	}
}

func TestEscalationGrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{
		Periods:       []time.Duration{time.Minute, time.Hour},
		MaxEscalation: 2,
	}
	svc := NewServiceWithConfig(cfg, testutil.TestLogger(t))

	svc.RecordFailure(books.PlatformLiber3, nil)
	first := svc.GetStatus(books.PlatformLiber3)

	svc.RecordFailure(books.PlatformLiber3, nil)
	second := svc.GetStatus(books.PlatformLiber3)

	svc.RecordFailure(books.PlatformLiber3, nil)
	third := svc.GetStatus(books.PlatformLiber3)

	if first.EscalationLevel != 1 || second.EscalationLevel != 2 {
		t.Errorf("escalation must grow: %d then %d", first.EscalationLevel, second.EscalationLevel)
	}
	if third.EscalationLevel != 2 {
		t.Errorf("escalation must cap at %d, got %d", cfg.MaxEscalation, third.EscalationLevel)
	}
	if !second.DisabledTill.After(*first.DisabledTill) {
		t.Error("backoff must lengthen with escalation")
	}
}

func TestSuccessClearsFailureState(t *testing.T) {
	svc := NewService(testutil.TestLogger(t))

	svc.RecordFailure(books.PlatformZLibrary, errors.New("boom"))
	svc.RecordSuccess(books.PlatformZLibrary)

	if disabled, _ := svc.IsDisabled(books.PlatformZLibrary); disabled {
		t.Error("success must clear the bench")
	}
	if status := svc.GetStatus(books.PlatformZLibrary); status.EscalationLevel != 0 {
		t.Errorf("escalation must reset, got %d", status.EscalationLevel)
	}
}

func TestExpiredBackoffReEnables(t *testing.T) {
	cfg := BackoffConfig{
		Periods:       []time.Duration{time.Millisecond},
		MaxEscalation: 1,
	}
	svc := NewServiceWithConfig(cfg, testutil.TestLogger(t))

	svc.RecordFailure(books.PlatformArchiveOrg, nil)
	time.Sleep(5 * time.Millisecond)

	if disabled, _ := svc.IsDisabled(books.PlatformArchiveOrg); disabled {
		t.Error("platform must re-enable once the backoff expires")
	}
}

func TestProbeRecoversPlatform(t *testing.T) {
	svc := NewService(testutil.TestLogger(t))
	source := testutil.NewFakeSource(books.PlatformArchiveOrg)

	svc.RecordFailure(books.PlatformArchiveOrg, errors.New("boom"))
	svc.probe(map[books.Platform]books.Source{books.PlatformArchiveOrg: source})

	if disabled, _ := svc.IsDisabled(books.PlatformArchiveOrg); disabled {
		t.Error("successful probe must clear the bench")
	}
}

func TestProbeKeepsFailingPlatformBenched(t *testing.T) {
	svc := NewService(testutil.TestLogger(t))
	source := testutil.NewFakeSource(books.PlatformZLibrary)
	source.TestFunc = func(context.Context) error {
		return errors.New("still down")
	}

	svc.RecordFailure(books.PlatformZLibrary, errors.New("boom"))
	svc.probe(map[books.Platform]books.Source{books.PlatformZLibrary: source})

	if disabled, _ := svc.IsDisabled(books.PlatformZLibrary); !disabled {
		t.Error("failing probe must keep the platform benched")
	}
}
