package crypto

import (
	"testing"
)

func TestCanonicalizeJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"sorted keys", `{"b":1,"a":2}`, `{"a":2,"b":1}`},
		{"nested objects", `{"z":{"y":true,"x":null},"a":[1,2]}`, `{"a":[1,2],"z":{"x":null,"y":true}}`},
		{"whitespace stripped", "{\n  \"k\" : \"v\"\n}", `{"k":"v"}`},
		{"integer stays integer", `{"n":1000}`, `{"n":1000}`},
		{"float trailing zeros", `{"n":0.500}`, `{"n":0.5}`},
		{"string escapes", `{"s":"a\"b\n"}`, `{"s":"a\"b\n"}`},
		{"empty object", `{}`, `{}`},
		{"empty array", `[]`, `[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tc.input))
			if err != nil {
				t.Fatalf("CanonicalizeJSON: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestCanonicalizeJSON_RejectsTrailingData(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{"a":1} trailing`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestCanonicalizeAny_Struct(t *testing.T) {
	type payload struct {
		B int    `json:"b"`
		A string `json:"a"`
	}
	got, err := CanonicalizeAny(payload{B: 7, A: "x"})
	if err != nil {
		t.Fatalf("CanonicalizeAny: %v", err)
	}
	if string(got) != `{"a":"x","b":7}` {
		t.Fatalf("got %s", got)
	}
}

func TestCanonicalizeAny_Deterministic(t *testing.T) {
	input := map[string]any{"k2": []any{"a", "b"}, "k1": 1.25, "k3": map[string]any{"z": false}}
	first, err := CanonicalizeAny(input)
	if err != nil {
		t.Fatalf("CanonicalizeAny: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := CanonicalizeAny(input)
		if err != nil {
			t.Fatalf("CanonicalizeAny: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("output changed between runs: %s vs %s", again, first)
		}
	}
}
