package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestQuantityJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Quantity
	}{
		{"number", `12`, Limited(12)},
		{"zero", `0`, Limited(0)},
		{"unlimited", `"unlimited"`, UnlimitedQty()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var q Quantity
			if err := json.Unmarshal([]byte(tc.in), &q); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if q != tc.want {
				t.Fatalf("got %+v, want %+v", q, tc.want)
			}

			out, err := json.Marshal(q)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tc.in {
				t.Fatalf("round trip changed %s to %s", tc.in, out)
			}
		})
	}
}

func TestQuantityRejectsBadInput(t *testing.T) {
	for _, in := range []string{`-1`, `"lots"`, `1.5`, `{}`} {
		var q Quantity
		err := json.Unmarshal([]byte(in), &q)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("input %s: expected validation error, got %v", in, err)
		}
	}
}

func TestQuantityArithmetic(t *testing.T) {
	q := Limited(5)
	if !q.Enough(5) || q.Enough(6) {
		t.Fatalf("Enough wrong for %s", q)
	}
	if got := q.Take(3); got.Count != 2 {
		t.Fatalf("Take(3) from 5 gave %s", got)
	}
	if got := q.Take(10); got.Count != 0 {
		t.Fatalf("Take past zero must clamp, got %s", got)
	}
	if got := q.Restore(4); got.Count != 9 {
		t.Fatalf("Restore(4) on 5 gave %s", got)
	}

	u := UnlimitedQty()
	if !u.Enough(1_000_000) {
		t.Fatal("unlimited must always be enough")
	}
	if got := u.Take(10); !got.Unlimited {
		t.Fatalf("unlimited must survive Take, got %s", got)
	}
	if got := u.Restore(10); !got.Unlimited {
		t.Fatalf("unlimited must survive Restore, got %s", got)
	}
}

func TestProductValidate(t *testing.T) {
	good := Product{Name: "Bread", Price: 1000, Quantity: Limited(10)}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid product rejected: %v", err)
	}

	for _, p := range []Product{
		{Name: "", Price: 1000},
		{Name: "Bread", Price: 0},
		{Name: "Bread", Price: -5},
	} {
		if err := p.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("product %+v: expected validation error, got %v", p, err)
		}
	}
}

func TestShiftActive(t *testing.T) {
	open := Shift{ID: "shift-1"}
	if !open.Active() {
		t.Fatal("nil end time means active")
	}

	data, err := json.Marshal(open)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The active-shift query filters on endTime being null, so the field
	// must serialize explicitly rather than being omitted.
	if string(fields["endTime"]) != "null" {
		t.Fatalf("open shift must serialize endTime as null, got %s", fields["endTime"])
	}
}
