package iomap

import (
	"encoding/json"
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		out  string
	}{
		{"1", KindInt, "1"},
		{"-42", KindInt, "-42"},
		{"21.5", KindFloat, "21.5"},
		{"on", KindText, "on"},
		{"", KindText, ""},
	}
	for _, tt := range tests {
		v := ParseValue(tt.in)
		if v.Kind() != tt.kind {
			t.Errorf("ParseValue(%q).Kind() = %v, want %v", tt.in, v.Kind(), tt.kind)
		}
		if v.String() != tt.out {
			t.Errorf("ParseValue(%q).String() = %q, want %q", tt.in, v.String(), tt.out)
		}
	}
}

func TestValueInt(t *testing.T) {
	tests := []struct {
		v    Value
		want int64
		ok   bool
	}{
		{Int(1), 1, true},
		{Float(2.9), 2, true},
		{Text("3"), 3, true},
		{Text("high"), 0, false},
		{Value{}, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.v.Int()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%#v.Int() = %d, %v; want %d, %v", tt.v, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValueJSON(t *testing.T) {
	var payload struct {
		A Value `json:"a"`
		B Value `json:"b"`
		C Value `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"1","b":2.5,"c":null}`), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.A.Kind() != KindInt || payload.B.Kind() != KindFloat || payload.C.IsSet() {
		t.Errorf("unexpected kinds: %v %v %v", payload.A.Kind(), payload.B.Kind(), payload.C.Kind())
	}

	out, err := json.Marshal(payload.B)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"2.5"` {
		t.Errorf("Marshal = %s, want \"2.5\"", out)
	}
}

func TestIsReserved(t *testing.T) {
	for ref, want := range map[string]bool{
		"restart": true, "reset": true, "disconnect": false, "relay": false,
	} {
		if IsReserved(ref) != want {
			t.Errorf("IsReserved(%q) = %v", ref, !want)
		}
	}
}
