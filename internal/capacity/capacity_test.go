package capacity

import (
	"errors"
	"testing"

	"minigames/internal/domain"
)

func TestCheck(t *testing.T) {
	b := Budget{Capacity: 8, MaxWeight: 5}
	cases := []struct {
		name     string
		item     domain.Item
		load     Load
		wantErr  bool
		resource string
	}{
		{"fits empty", domain.Item{ID: "a", Cost: 8}, Load{}, false, ""},
		{"exact fill", domain.Item{ID: "a", Cost: 2}, Load{Cost: 6}, false, ""},
		{"over by one", domain.Item{ID: "a", Cost: 3}, Load{Cost: 6}, true, "capacity"},
		{"round-off tolerated", domain.Item{ID: "a", Cost: 0.1}, Load{Cost: 7.9000000000001}, false, ""},
		{"too heavy", domain.Item{ID: "a", Cost: 1, Weight: 2}, Load{Cost: 1, Weight: 4}, true, "weight"},
	}
	for _, tc := range cases {
		err := Check(tc.item, tc.load, b)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: unexpected err %v", tc.name, err)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("%s: error does not match ErrCapacityExceeded", tc.name)
		}
		var ex *ExceededError
		if !errors.As(err, &ex) || ex.Resource != tc.resource {
			t.Fatalf("%s: expected %s resource, got %v", tc.name, tc.resource, err)
		}
	}
}

func TestOversizedItemNeverFits(t *testing.T) {
	b := Budget{Capacity: 4}
	big := domain.Item{ID: "big", Cost: 5}
	if Fits(big, b) {
		t.Fatalf("item larger than capacity must never fit")
	}
	if CanPlace(big, Load{}, b) {
		t.Fatalf("oversized item placed on empty budget")
	}
}

func TestUnlimitedWeight(t *testing.T) {
	b := Budget{Capacity: 2}
	if !CanPlace(domain.Item{ID: "anvil", Cost: 1, Weight: 1000}, Load{}, b) {
		t.Fatalf("zero max weight means unlimited")
	}
}

func TestLoadAddSub(t *testing.T) {
	it := domain.Item{ID: "a", Cost: 2, Weight: 1.5}
	l := Load{}.Add(it).Add(it).Sub(it)
	if l.Cost != 2 || l.Weight != 1.5 {
		t.Fatalf("unexpected load %+v", l)
	}
	if r := (Budget{Capacity: 8}).Remaining(l); r != 6 {
		t.Fatalf("remaining %v", r)
	}
}
