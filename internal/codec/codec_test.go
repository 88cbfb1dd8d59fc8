package codec

import (
	"bytes"
	"testing"
)

func TestUnmarshal_AnyMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"content": "Hello World"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", out)
	}
	if m["content"] != "Hello World" {
		t.Fatalf("content = %v", m["content"])
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	a, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encodings differ: %x vs %x", a, b)
	}
}

func TestStream_SelfDelimiting(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, v := range []string{"one", "two"} {
		if err := enc.Encode(v); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for _, want := range []string{"one", "two"} {
		var got string
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
