package jsonrpc

import (
	"testing"
)

func TestSplitBatch(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		elements, isBatch, err := SplitBatch([]byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","id":1}`))
		if err != nil {
			t.Fatalf("SplitBatch: %v", err)
		}
		if isBatch {
			t.Error("single request reported as batch")
		}
		if len(elements) != 1 {
			t.Errorf("got %d elements, want 1", len(elements))
		}
	})

	t.Run("batch", func(t *testing.T) {
		elements, isBatch, err := SplitBatch([]byte(`[{"id":1},{"id":2}]`))
		if err != nil {
			t.Fatalf("SplitBatch: %v", err)
		}
		if !isBatch {
			t.Error("array not reported as batch")
		}
		if len(elements) != 2 {
			t.Errorf("got %d elements, want 2", len(elements))
		}
	})

	t.Run("leading whitespace", func(t *testing.T) {
		_, isBatch, err := SplitBatch([]byte("  \n\t[{\"id\":1}]"))
		if err != nil {
			t.Fatalf("SplitBatch: %v", err)
		}
		if !isBatch {
			t.Error("whitespace-prefixed array not reported as batch")
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		if _, _, err := SplitBatch([]byte(`[]`)); err == nil {
			t.Error("empty batch accepted")
		}
	})

	t.Run("empty body", func(t *testing.T) {
		if _, _, err := SplitBatch(nil); err == nil {
			t.Error("empty body accepted")
		}
	})

	t.Run("malformed element survives split", func(t *testing.T) {
		// The split itself must not fail: per-element validation happens later
		elements, _, err := SplitBatch([]byte(`[{"id":1}, "not a request"]`))
		if err != nil {
			t.Fatalf("SplitBatch: %v", err)
		}
		if len(elements) != 2 {
			t.Errorf("got %d elements, want 2", len(elements))
		}
	})
}

func TestRequest_Validate(t *testing.T) {
	valid := &Request{JSONRPC: Version, Method: "eth_blockNumber", ID: NewIDInt(1)}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate on valid request: %v", err)
	}

	noVersion := &Request{Method: "eth_blockNumber", ID: NewIDInt(1)}
	if err := noVersion.Validate(); err == nil {
		t.Error("missing jsonrpc version accepted")
	}

	noMethod := &Request{JSONRPC: Version, ID: NewIDInt(1)}
	if err := noMethod.Validate(); err == nil {
		t.Error("missing method accepted")
	}
}

func TestID_EchoedVerbatim(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"number", `{"jsonrpc":"2.0","method":"m","id":42}`, "42"},
		{"string", `{"jsonrpc":"2.0","method":"m","id":"abc"}`, `"abc"`},
		{"null", `{"jsonrpc":"2.0","method":"m","id":null}`, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseRequest: %v", err)
			}
			resp := NewErrorResponse(req.ID, ErrInternal)
			data, err := resp.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			parsed, err := ParseResponse(data)
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if parsed.ID.String() != tt.want {
				t.Errorf("echoed id = %s, want %s", parsed.ID.String(), tt.want)
			}
		})
	}
}

func TestID_Constructors(t *testing.T) {
	if got := NewIDString("abc").String(); got != `"abc"` {
		t.Errorf("string id = %s, want \"abc\"", got)
	}
	if got := NewIDInt(7).String(); got != "7" {
		t.Errorf("int id = %s, want 7", got)
	}
	null := NewIDNull()
	if !null.IsNull() {
		t.Error("NewIDNull is not null")
	}
	if got := null.String(); got != "null" {
		t.Errorf("null id = %s, want null", got)
	}
}

func TestResponse_ResultXorError(t *testing.T) {
	ok := NewResponseRaw(NewIDInt(1), []byte(`"0x1"`))
	if ok.HasError() || !ok.IsSuccess() {
		t.Error("success response reports an error")
	}

	bad := NewErrorResponse(NewIDInt(1), ErrInternal)
	if !bad.HasError() || bad.IsSuccess() {
		t.Error("error response reports success")
	}
	if bad.Result != nil {
		t.Error("error response carries a result")
	}
}

func TestGetSubscriptionType(t *testing.T) {
	req, _ := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"eth_subscribe","params":["newHeads"],"id":1}`))
	subType, extra, err := req.GetSubscriptionType()
	if err != nil {
		t.Fatalf("GetSubscriptionType: %v", err)
	}
	if subType != "newHeads" {
		t.Errorf("subType = %s, want newHeads", subType)
	}
	if extra != nil {
		t.Errorf("extra params = %s, want none", extra)
	}

	empty, _ := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"eth_subscribe","params":[],"id":1}`))
	if _, _, err := empty.GetSubscriptionType(); err == nil {
		t.Error("empty subscribe params accepted")
	}
}
