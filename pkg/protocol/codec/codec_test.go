package codec

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

type sample struct {
	Name  string `cbor:"name" json:"name"`
	Count int    `cbor:"count" json:"count"`
}

func TestRegistryPreloadsBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, ct := range []string{"application/cbor", "application/json", "application/x-protobuf"} {
		if r.Get(ct) == nil {
			t.Fatalf("codec missing for %s", ct)
		}
	}
	if r.Get("application/yaml") != nil {
		t.Fatalf("unexpected codec for unregistered content type")
	}
}

func TestCBORRoundtripDeterministic(t *testing.T) {
	c := CBOR()
	in := sample{Name: "relay", Count: 3}

	b1, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b2, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("cbor encoding not deterministic")
	}

	var out sample
	if err := c.Unmarshal(b1, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip: got %+v, want %+v", out, in)
	}
}

func TestJSONRoundtrip(t *testing.T) {
	c := JSON()
	in := sample{Name: "reflect", Count: 1}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out sample
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip: got %+v, want %+v", out, in)
	}
}

func TestProtoRejectsNonMessage(t *testing.T) {
	c := Proto()
	if _, err := c.Marshal(sample{}); err == nil {
		t.Fatalf("expected error for non-proto value")
	}
	if err := c.Unmarshal(nil, &sample{}); err == nil {
		t.Fatalf("expected error for non-proto target")
	}
}

func TestProtoRoundtrip(t *testing.T) {
	c := Proto()
	in, err := structpb.NewStruct(map[string]any{"peers": 2.0, "state": "open"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := &structpb.Struct{}
	if err := c.Unmarshal(b, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Fields["state"].GetStringValue() != "open" || out.Fields["peers"].GetNumberValue() != 2.0 {
		t.Fatalf("roundtrip mismatch: %v", out)
	}
}
