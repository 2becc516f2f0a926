package core

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestAtomsInterned(t *testing.T) {
	a := Intern("on")
	b := Intern("on")
	if a != b {
		t.Fatal("same name, different atoms")
	}
	if a == Intern("off") {
		t.Fatal("different names, same atom")
	}
	if a.Repr() != "'on" || a.String() != "on" {
		t.Fatal(a.Repr(), a.String())
	}
}

func TestEqAndEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		eq    bool
		equal bool
	}{
		{"ints", Int(1), Int(1), true, true},
		{"int float", Int(1), Float(1), false, true},
		{"strings", String("x"), String("x"), true, true},
		{"atom string", Intern("tupleview"), String("tupleview"), false, true},
		{"string atom", String("tupleview"), Intern("tupleview"), false, true},
		{"atoms", Intern("a"), Intern("a"), true, true},
		{"bools", True, False, false, false},
		{"nils", NilValue, NilValue, true, true},
		{"lists", List{Int(1), String("a")}, List{Float(1), Intern("a")}, false, true},
		{"list lengths", List{Int(1)}, List{Int(1), Int(2)}, false, false},
		{"mixed", Int(1), String("1"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eq(tt.a, tt.b); got != tt.eq {
				t.Fatalf("Eq got %v", got)
			}
			if got := Equal(tt.a, tt.b); got != tt.equal {
				t.Fatalf("Equal got %v", got)
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	if b, err := Truthy(True); err != nil || !b {
		t.Fatal(b, err)
	}
	if _, err := Truthy(Int(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Fatal(err)
	}
}

func TestRendering(t *testing.T) {
	tests := []struct {
		v    Value
		s    string
		repr string
	}{
		{Int(120), "120", "120"},
		{Float(0.5), "0.5", "0.5"},
		{Float(3), "3", "3"},
		{String("hi"), "hi", `"hi"`},
		{List{Intern("ok"), Int(1), String("s")}, `('ok 1 "s")`, `('ok 1 "s")`},
		{NilValue, "nil", "nil"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.s {
			t.Fatalf("String: got %s; wanted %s", got, tt.s)
		}
		if got := tt.v.Repr(); got != tt.repr {
			t.Fatalf("Repr: got %s; wanted %s", got, tt.repr)
		}
	}
}

func TestErrors(t *testing.T) {
	err := Errorf(TupleNotFound, "100:x").At(Pos{File: "a.ts", Line: 3, Col: 5})
	if err.Error() != "a.ts:3:5: TupleNotFound: 100:x" {
		t.Fatal(err.Error())
	}
	if !errors.Is(err, ErrTupleNotFound) {
		t.Fatal("should be a TupleNotFound")
	}
	if errors.Is(err, ErrCyclicMetaLink) {
		t.Fatal("shouldn't be a CyclicMetaLink")
	}
	wrapped := errors.New("outer: " + err.Error())
	if _, ok := KindOf(wrapped); ok {
		t.Fatal("plain error has no kind")
	}
	if k, ok := KindOf(errors.Join(errors.New("x"), err)); !ok || k != TupleNotFound {
		t.Fatal(k, ok)
	}
}

func TestTupleJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tuples := []*Tuple{
		{Owner: 100, Key: "components.odometry.reqState", Value: Intern("on"), Timestamp: ts, Seq: 1},
		{Owner: 100, Key: "settings", Value: String("beam me up scotty!"), Timestamp: ts, Seq: 2},
		{Owner: 102, Key: "mi-laser", IsMeta: true, Meta: &Ref{Owner: 100, Key: "laser"}, Timestamp: ts, Seq: 3},
		{Owner: 103, Key: "mi-odometry", IsMeta: true, Timestamp: ts, Seq: 4},
		{Owner: 1, Key: "list", Value: List{Int(1), Float(2.5), True}, Timestamp: ts, Seq: 5},
	}
	for _, tup := range tuples {
		js, err := json.Marshal(tup)
		if err != nil {
			t.Fatal(err)
		}
		var got Tuple
		if err = json.Unmarshal(js, &got); err != nil {
			t.Fatal(err)
		}
		if got.String() != tup.String() || got.Seq != tup.Seq || !got.Timestamp.Equal(ts) {
			t.Fatalf("%s: got %s", js, got.String())
		}
	}
}

func TestFromJSON(t *testing.T) {
	v, err := FromJSON([]interface{}{float64(3), 2.5, "x", map[string]interface{}{"atom": "on"}, nil})
	if err != nil {
		t.Fatal(err)
	}
	want := List{Int(3), Float(2.5), String("x"), Intern("on"), NilValue}
	if !Equal(v, want) || v.(List)[0] != Int(3) {
		t.Fatal(v.Repr())
	}
	if _, err = FromJSON(map[string]interface{}{"x": 1}); err == nil {
		t.Fatal("objects aren't values")
	}
}
