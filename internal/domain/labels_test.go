package domain

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestTaskStatusLabelRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.SampledFrom(TaskStatuses).Draw(rt, "status")
		label, err := s.Label()
		if err != nil {
			rt.Fatalf("Label(%s): %v", s, err)
		}
		back, err := TaskStatusFromLabel(label)
		if err != nil {
			rt.Fatalf("FromLabel(%q): %v", label, err)
		}
		if back != s {
			rt.Fatalf("round trip %s -> %q -> %s", s, label, back)
		}
	})
}

func TestValidationLabelRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := rapid.SampledFrom(Validations).Draw(rt, "validation")
		label, err := v.Label()
		if err != nil {
			rt.Fatalf("Label(%s): %v", v, err)
		}
		back, err := ValidationFromLabel(label)
		if err != nil {
			rt.Fatalf("FromLabel(%q): %v", label, err)
		}
		if back != v {
			rt.Fatalf("round trip %s -> %q -> %s", v, label, back)
		}
	})
}

func TestPhaseStatusLabelRoundTrip(t *testing.T) {
	for _, s := range PhaseStatuses {
		label, err := s.Label()
		if err != nil {
			t.Fatalf("Label(%s): %v", s, err)
		}
		back, err := PhaseStatusFromLabel(label)
		if err != nil || back != s {
			t.Fatalf("round trip %s -> %q -> %s (%v)", s, label, back, err)
		}
	}
}

func TestLabelsAreExact(t *testing.T) {
	cases := map[Validation]string{
		ValidationPending:       "En attente",
		ValidationNeedsRevision: "À réviser",
		ValidationApproved:      "Approuvé",
	}
	for v, want := range cases {
		got, _ := v.Label()
		if got != want {
			t.Fatalf("%s label = %q, want %q", v, got, want)
		}
	}
	for _, bad := range []string{"approuvé", "A réviser", "Approuve", "", "done"} {
		if _, err := ValidationFromLabel(bad); !errors.Is(err, ErrUnknownValue) {
			t.Fatalf("expected unknown value for %q, got %v", bad, err)
		}
	}
	if _, err := TaskStatus("archived").Label(); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected unknown task status error, got %v", err)
	}
}

func TestParseAcceptsCodeOrLabel(t *testing.T) {
	for _, in := range []string{"approved", "Approuvé"} {
		v, err := ParseValidation(in)
		if err != nil || v != ValidationApproved {
			t.Fatalf("ParseValidation(%q) = %s, %v", in, v, err)
		}
	}
	for _, in := range []string{"paused", "En pause"} {
		s, err := ParseTaskStatus(in)
		if err != nil || s != TaskPaused {
			t.Fatalf("ParseTaskStatus(%q) = %s, %v", in, s, err)
		}
	}
	if _, err := ParseValidation("rejected"); err == nil {
		t.Fatalf("expected error for rejected")
	}
	if _, err := ParseRole("chef_equipe"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestPhaseCanAdvance(t *testing.T) {
	if !PhaseWaiting.CanAdvance(PhaseInProgress) || !PhaseInProgress.CanAdvance(PhaseDone) || !PhaseWaiting.CanAdvance(PhaseDone) {
		t.Fatalf("forward moves must be allowed")
	}
	if PhaseDone.CanAdvance(PhaseInProgress) || PhaseInProgress.CanAdvance(PhaseWaiting) || PhaseDone.CanAdvance(PhaseDone) {
		t.Fatalf("reverse or same-state moves must be rejected")
	}
}

func TestProgress(t *testing.T) {
	if p := Progress("T001", nil); p.Fraction != 0 || p.Total != 0 {
		t.Fatalf("empty task progress = %+v", p)
	}
	rapid.Check(t, func(rt *rapid.T) {
		statuses := rapid.SliceOfN(rapid.SampledFrom(PhaseStatuses), 1, 30).Draw(rt, "phases")
		phases := make([]Phase, len(statuses))
		done := 0
		for i, s := range statuses {
			phases[i] = Phase{Status: s}
			if s == PhaseDone {
				done++
			}
		}
		p := Progress("T001", phases)
		want := float64(done) / float64(len(phases))
		if p.Fraction != want || p.Done != done || p.Total != len(phases) {
			rt.Fatalf("progress = %+v, want %d/%d", p, done, len(phases))
		}
	})
}
