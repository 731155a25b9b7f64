package message

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/juju/errors"

	"mini-jsonrpc/idgen"
)

type AddArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func newEncoder(start uint64) (*Encoder, *idgen.Generator) {
	ids := idgen.NewGenerator(start)
	return NewEncoder(ids, nil, 0), ids
}

func TestEncoderCall(t *testing.T) {
	enc, _ := newEncoder(0)

	call, err := enc.Call("Arith.Add", &AddArgs{A: 1, B: 2})
	if err != nil {
		t.Fatal(err)
	}
	if call.ID != 0 {
		t.Fatalf("expect id 0, got %d", call.ID)
	}

	body, err := enc.Marshal(call)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","method":"Arith.Add","params":{"a":1,"b":2},"id":0}`
	if string(body) != want {
		t.Fatalf("expect %s, got %s", want, body)
	}

	next, err := enc.Call("Arith.Add", nil)
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != 1 {
		t.Fatalf("expect id 1, got %d", next.ID)
	}
	body, _ = enc.Marshal(next)
	if strings.Contains(string(body), "params") {
		t.Fatalf("nil params must be omitted, got %s", body)
	}
}

func TestEncoderNotificationAllocatesNoID(t *testing.T) {
	enc, ids := newEncoder(42)

	for i := 0; i < 10; i++ {
		n, err := enc.Notification("log.Append", []string{"line"})
		if err != nil {
			t.Fatal(err)
		}
		body, err := enc.Marshal(n)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(body), `"id"`) {
			t.Fatalf("notification must not carry an id: %s", body)
		}
	}
	if ids.Peek() != 42 {
		t.Fatalf("notifications moved the generator to %d", ids.Peek())
	}
}

func TestEncoderBatchPositions(t *testing.T) {
	enc, _ := newEncoder(5)

	batch, positions, err := enc.Batch([]Entry{
		{Method: "a", Params: []int{1}},
		{Method: "b"},
		{Method: "c", Params: map[string]int{"x": 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for pos, wantID := range []uint64{5, 6, 7} {
		if batch[pos].ID != wantID {
			t.Fatalf("position %d: expect id %d, got %d", pos, wantID, batch[pos].ID)
		}
		if positions[wantID] != pos {
			t.Fatalf("id %d: expect position %d, got %d", wantID, pos, positions[wantID])
		}
	}
	if len(positions) != 3 {
		t.Fatalf("expect 3 positions, got %d", len(positions))
	}
}

func TestEncoderRejects(t *testing.T) {
	enc, ids := newEncoder(0)

	if _, err := enc.Call("", nil); !errors.Is(err, ErrEmptyMethod) {
		t.Fatalf("expect ErrEmptyMethod, got %v", err)
	}
	if _, err := enc.Call("scalar", 42); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expect ErrInvalidParams, got %v", err)
	}
	if _, _, err := enc.Batch(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expect ErrEmptyBatch, got %v", err)
	}
	if _, _, err := enc.Batch([]Entry{{Method: "ok"}, {Method: ""}}); !errors.Is(err, ErrEmptyMethod) {
		t.Fatalf("expect ErrEmptyMethod, got %v", err)
	}
	if ids.Peek() != 0 {
		t.Fatalf("rejected calls allocated ids, generator at %d", ids.Peek())
	}
}

func TestEncoderMaxBodySize(t *testing.T) {
	enc := NewEncoder(&idgen.Generator{}, nil, 64)

	batch, _, err := enc.Batch([]Entry{
		{Method: "Arith.Add", Params: &AddArgs{A: 1, B: 2}},
		{Method: "Arith.Add", Params: &AddArgs{A: 3, B: 4}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Marshal(batch); !errors.Is(err, ErrRequestTooLarge) {
		t.Fatalf("expect ErrRequestTooLarge, got %v", err)
	}
	if enc.MaxBodySize() != 64 {
		t.Fatalf("expect limit 64, got %d", enc.MaxBodySize())
	}
	if NewEncoder(&idgen.Generator{}, nil, 0).MaxBodySize() != DefaultMaxBodySize {
		t.Fatal("expect default limit of 10 MiB")
	}
}

func TestDecodeSuccess(t *testing.T) {
	d := NewDecoder(nil)

	got := d.Decode([]byte(`{"jsonrpc":"2.0","id":0,"result":42}`))
	if got.Kind != KindSuccess {
		t.Fatalf("expect success, got %s (%v)", got.Kind, got.Err)
	}
	if string(got.Envelope.Result) != "42" {
		t.Fatalf("expect result 42, got %s", got.Envelope.Result)
	}
	if string(got.Envelope.ID) != "0" {
		t.Fatalf("expect id 0, got %s", got.Envelope.ID)
	}

	// A null result is still a success.
	got = d.Decode([]byte(`{"jsonrpc":"2.0","id":3,"result":null}`))
	if got.Kind != KindSuccess || string(got.Envelope.Result) != "null" {
		t.Fatalf("expect null success, got %s %s", got.Kind, got.Envelope.Result)
	}
}

func TestDecodeProtocolError(t *testing.T) {
	d := NewDecoder(nil)

	got := d.Decode([]byte(`{"jsonrpc":"2.0","id":0,"error":{"code":-32600,"message":"Invalid Request"}}`))
	if got.Kind != KindProtocolError {
		t.Fatalf("expect protocol error, got %s (%v)", got.Kind, got.Err)
	}
	if got.Envelope.Error.Code != -32600 || got.Envelope.Error.Message != "Invalid Request" {
		t.Fatalf("unexpected error object %+v", got.Envelope.Error)
	}
	if !got.Envelope.IsError() {
		t.Fatal("expect IsError")
	}
}

func TestDecodeUndecodableKeepsFirstError(t *testing.T) {
	d := NewDecoder(nil)

	cases := []string{
		`not json`,
		`{"jsonrpc":"2.0","id":1}`,
		`{"id":1,"error":{"message":"no code"}}`,
		`[1,2,3]`,
		`null`,
	}
	for _, body := range cases {
		got := d.Decode([]byte(body))
		if got.Kind != KindUndecodable {
			t.Errorf("%s: expect undecodable, got %s", body, got.Kind)
			continue
		}
		if got.Err == nil {
			t.Errorf("%s: expect decode error", body)
		}
	}

	// The success attempt's failure is reported, not the error-shape one.
	got := d.Decode([]byte(`{"jsonrpc":"2.0","id":1}`))
	if !errors.Is(got.Err, errNoResult) {
		t.Fatalf("expect the success-shape failure, got %v", got.Err)
	}
}

func TestDecodeBatch(t *testing.T) {
	d := NewDecoder(nil)

	got := d.DecodeBatch([]byte(`[
		{"jsonrpc":"2.0","id":7,"result":"c"},
		{"jsonrpc":"2.0","id":5,"error":{"code":-32601,"message":"Method not found"}},
		{"jsonrpc":"2.0","id":6,"result":"b"}
	]`))
	if got.Kind != KindSuccess {
		t.Fatalf("expect success, got %s (%v)", got.Kind, got.Err)
	}
	if len(got.Envelopes) != 3 {
		t.Fatalf("expect 3 envelopes, got %d", len(got.Envelopes))
	}
	if !got.Envelopes[1].IsError() || got.Envelopes[1].Error.Code != -32601 {
		t.Fatalf("expect member 1 to be an error, got %+v", got.Envelopes[1])
	}

	got = d.DecodeBatch([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`))
	if got.Kind != KindProtocolError || got.Envelope.Error.Code != -32700 {
		t.Fatalf("expect batch-level protocol error, got %s %+v", got.Kind, got.Envelope)
	}

	got = d.DecodeBatch([]byte(`[{"id":1}]`))
	if got.Kind != KindUndecodable || got.Err == nil {
		t.Fatalf("expect undecodable, got %s", got.Kind)
	}
}

func TestDecodeNullErrorMember(t *testing.T) {
	d := NewDecoder(nil)

	got := d.Decode([]byte(`{"jsonrpc":"2.0","id":0,"result":42,"error":null}`))
	if got.Kind != KindSuccess || string(got.Envelope.Result) != "42" {
		t.Fatalf("expect success with result 42, got %s (%v)", got.Kind, got.Err)
	}
	if got.Envelope.IsError() {
		t.Fatal("null error member must not make the reply an error")
	}

	// A result next to a real error object is still an error reply.
	got = d.Decode([]byte(`{"id":0,"result":null,"error":{"code":1,"message":"boom"}}`))
	if got.Kind != KindProtocolError {
		t.Fatalf("expect protocol error, got %s", got.Kind)
	}

	// Without a result a null error member is neither shape.
	got = d.Decode([]byte(`{"id":0,"error":null}`))
	if got.Kind != KindUndecodable || !errors.Is(got.Err, errNoResult) {
		t.Fatalf("expect undecodable with missing result, got %s (%v)", got.Kind, got.Err)
	}

	batch := d.DecodeBatch([]byte(`[{"id":5,"result":1,"error":null},{"id":6,"result":2, "error" : null }]`))
	if batch.Kind != KindSuccess || len(batch.Envelopes) != 2 {
		t.Fatalf("expect two successes, got %s (%v)", batch.Kind, batch.Err)
	}
	for i, env := range batch.Envelopes {
		if env.IsError() {
			t.Errorf("member %d decoded as an error", i)
		}
	}
}

func TestParseID(t *testing.T) {
	cases := []struct {
		raw  string
		want uint64
		err  error
	}{
		{raw: "0", want: 0},
		{raw: " 42 ", want: 42},
		{raw: "18446744073709551615", want: math.MaxUint64},
		{raw: "", err: ErrMissingID},
		{raw: "null", err: ErrInvalidID},
		{raw: `"5"`, err: ErrInvalidID},
		{raw: "-1", err: ErrInvalidID},
		{raw: "1.5", err: ErrInvalidID},
		{raw: "18446744073709551616", err: ErrInvalidID},
	}
	for _, tc := range cases {
		got, err := ParseID(json.RawMessage(tc.raw))
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Errorf("%q: expect %v, got %v", tc.raw, tc.err, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: expect %d, got %d (%v)", tc.raw, tc.want, got, err)
		}
	}
}

func TestEnvelopeMarshal(t *testing.T) {
	data, err := json.Marshal(Envelope{ID: json.RawMessage("3"), Result: json.RawMessage(`{"ok":true}`)})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"jsonrpc":"2.0","id":3,"result":{"ok":true}}` {
		t.Fatalf("unexpected success encoding %s", data)
	}

	data, err = json.Marshal(Envelope{Error: &ErrorObject{Code: -32700, Message: "Parse error"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}` {
		t.Fatalf("unexpected error encoding %s", data)
	}
}
