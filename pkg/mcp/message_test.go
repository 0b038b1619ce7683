package mcp

import (
	"encoding/json"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "number id", in: `{"jsonrpc":"2.0","id":42,"method":"ping"}`, want: "42"},
		{name: "string id", in: `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, want: `"abc"`},
		{name: "null id", in: `{"jsonrpc":"2.0","id":null,"method":"ping"}`, want: "null"},
		{name: "absent id", in: `{"jsonrpc":"2.0","method":"ping"}`, want: "null"},
		{name: "float id", in: `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`, want: "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.in), &req); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			out, err := json.Marshal(req.ID)
			if err != nil {
				t.Fatalf("Marshal(id) error = %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("id round trip = %s, want %s", out, tt.want)
			}
		})
	}
}

func TestRequestIDRejectsObjects(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`{"nested":1}`), &id); err == nil {
		t.Error("UnmarshalJSON accepted an object id")
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &id); err == nil {
		t.Error("UnmarshalJSON accepted an array id")
	}
}

func TestResponseExclusivity(t *testing.T) {
	ok := NewResult(NumberID(1), map[string]any{})
	if ok.Error != nil {
		t.Error("NewResult() set Error")
	}
	if ok.Result == nil {
		t.Error("NewResult() left Result empty")
	}

	bad := NewError(NumberID(1), MethodNotFound, "Method not found")
	if bad.Result != nil {
		t.Error("NewError() set Result")
	}
	if bad.Error == nil || bad.Error.Code != MethodNotFound {
		t.Errorf("NewError() error = %+v, want code %d", bad.Error, MethodNotFound)
	}

	// The error response must not serialize a result field at all.
	raw, err := json.Marshal(bad)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := m["result"]; ok {
		t.Error("error response carries a result field")
	}
	if string(m["id"]) != "1" {
		t.Errorf("id = %s, want 1", m["id"])
	}
}

func TestNegotiateProtocolVersion(t *testing.T) {
	tests := []struct {
		client string
		want   string
	}{
		{client: "2024-11-05", want: "2024-11-05"},
		{client: "2025-03-26", want: "2025-03-26"},
		{client: "2025-06-18", want: "2025-06-18"},
		{client: "2025-11-25", want: "2025-11-25"},
		{client: "1999-01-01", want: LatestProtocolVersion},
		{client: "", want: LatestProtocolVersion},
	}

	for _, tt := range tests {
		if got := NegotiateProtocolVersion(tt.client); got != tt.want {
			t.Errorf("NegotiateProtocolVersion(%q) = %q, want %q", tt.client, got, tt.want)
		}
	}
}
