package keymapper

import "testing"

func TestKeyRanges(t *testing.T) {
	alloc := newVirtualKeyAllocator()
	v := alloc.alloc()
	if !IsVirtualKey(v) {
		t.Fatalf("alloc() = %v, want a virtual key", v)
	}
	if IsActionKey(v) {
		t.Fatalf("virtual key %v misclassified as action key", v)
	}

	a := ActionKey(3)
	if !IsActionKey(a) {
		t.Fatalf("ActionKey(3) = %v, want an action key", a)
	}
	if ActionIndex(a) != 3 {
		t.Fatalf("ActionIndex(ActionKey(3)) = %d, want 3", ActionIndex(a))
	}
	if IsVirtualKey(KeyA) || IsActionKey(KeyA) {
		t.Fatalf("physical key KeyA misclassified")
	}
}

func TestLookupKey(t *testing.T) {
	aliases := map[string]Key{"Hyper": firstVirtualKey + 5}

	tests := []struct {
		name string
		want Key
		ok   bool
	}{
		{"A", KeyA, true},
		{"Enter", KeyEnter, true},
		{"Return", KeyEnter, true},
		{"Hyper", firstVirtualKey + 5, true},
		{"Nonexistent", None, false},
	}
	for _, tc := range tests {
		got, ok := LookupKey(tc.name, aliases)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("LookupKey(%q) = (%v, %v), want (%v, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLookupKeyAliasShadowsNothingBuiltIn(t *testing.T) {
	// An alias table never removes a built-in name; it only adds new ones.
	if _, ok := LookupKey("A", map[string]Key{"Hyper": firstVirtualKey}); !ok {
		t.Fatal("built-in key name stopped resolving in the presence of unrelated aliases")
	}
}

func TestKeyString(t *testing.T) {
	if got := KeyA.String(); got != "A" {
		t.Errorf("KeyA.String() = %q, want %q", got, "A")
	}
	if got := None.String(); got != "None" {
		t.Errorf("None.String() = %q, want %q", got, "None")
	}
	if got := AnyKey.String(); got != "Any" {
		t.Errorf("AnyKey.String() = %q, want %q", got, "Any")
	}
	v := firstVirtualKey + 2
	if got := v.String(); got != "Virtual[2]" {
		t.Errorf("virtual key String() = %q, want %q", got, "Virtual[2]")
	}
	a := ActionKey(1)
	if got := a.String(); got != "Action[1]" {
		t.Errorf("action key String() = %q, want %q", got, "Action[1]")
	}
}
