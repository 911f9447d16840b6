package goals

import (
	"errors"
	"testing"

	"goalpace/internal/domain"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := New(Default())
	if err != nil {
		t.Fatalf("New(Default()) error = %v", err)
	}
	all := r.All()
	if len(all) != 5 || all[0].Category != "exercise" || all[4].Category != "routines" {
		t.Fatalf("unexpected declaration order %+v", all)
	}
	ex, err := r.Lookup("Exercise")
	if err != nil {
		t.Fatalf("lookup exercise: %v", err)
	}
	if ex.WeeklyTarget != 4 || !ex.Passable {
		t.Fatalf("unexpected exercise goal %+v", ex)
	}
	med, _ := r.Lookup("meditation")
	if med.Passable {
		t.Fatal("daily goal must not be passable")
	}
	if !Qualifies(ex, "RUN") || !Qualifies(ex, "lift") || Qualifies(ex, "reading") {
		t.Fatal("unexpected member qualification")
	}
}

func TestLookupUnknownCategory(t *testing.T) {
	r, err := New(Default())
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Lookup("knitting")
	if !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestNewRejectsMalformedTable(t *testing.T) {
	cases := map[string][]Definition{
		"empty":          nil,
		"blank name":     {{Category: " ", WeeklyTarget: 3}},
		"duplicate":      {{Category: "a", WeeklyTarget: 3}, {Category: "A", WeeklyTarget: 2}},
		"zero target":    {{Category: "a", WeeklyTarget: 0}},
		"too big":        {{Category: "a", WeeklyTarget: 8}},
		"shared member":  {{Category: "a", WeeklyTarget: 3, Members: []string{"x"}}, {Category: "b", WeeklyTarget: 3, Members: []string{"x"}}},
		"member is goal": {{Category: "a", WeeklyTarget: 3}, {Category: "b", WeeklyTarget: 3, Members: []string{"a"}}},
		"goal is member": {{Category: "a", WeeklyTarget: 3, Members: []string{"b"}}, {Category: "b", WeeklyTarget: 3}},
	}
	for name, defs := range cases {
		_, err := New(defs)
		var cfgErr domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigurationError, got %v", name, err)
		}
	}
}
