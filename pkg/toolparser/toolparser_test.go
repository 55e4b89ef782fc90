package toolparser

import (
	"testing"

	"github.com/rhuss/strom/pkg/jsonvalue"
)

func TestNewState(t *testing.T) {
	s := NewState()
	if s.CurrentToolID != -1 {
		t.Fatalf("expected CurrentToolID -1, got %d", s.CurrentToolID)
	}
	if s.PrevToolCallArr == nil || s.PrevToolCallArr.Len() != 0 {
		t.Fatal("expected an empty PrevToolCallArr")
	}
}

func TestArgsPresent(t *testing.T) {
	cases := []struct {
		name string
		v    *jsonvalue.Value
		ok   bool
		want bool
	}{
		{"absent key", nil, false, false},
		{"empty object is falsy", jsonvalue.NewObject(), true, false},
		{"non-empty object is truthy", objWith("x", jsonvalue.NewNumber("1")), true, true},
		{"null value still counts present but falsy-shaped", jsonvalue.NewNull(), true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := argsPresent(c.v, c.ok); got != c.want {
				t.Fatalf("argsPresent(%v, %v) = %v, want %v", c.v, c.ok, got, c.want)
			}
		})
	}
}

func objWith(key string, val *jsonvalue.Value) *jsonvalue.Value {
	o := jsonvalue.NewObject()
	o.Set(key, val)
	return o
}

func TestContainsAndCount(t *testing.T) {
	ids := []int{1, 2, 2, 3}
	if !contains(ids, 2) {
		t.Fatal("expected contains to find 2")
	}
	if contains(ids, 9) {
		t.Fatal("did not expect contains to find 9")
	}
	if count(ids, 2) != 2 {
		t.Fatalf("expected count 2, got %d", count(ids, 2))
	}
}
