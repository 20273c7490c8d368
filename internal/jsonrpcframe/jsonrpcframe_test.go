package jsonrpcframe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_DispatchesRequestsAndWritesResponses(t *testing.T) {
	input := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"text":"hi"}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"boom","params":null}` + "\n",
	)
	var out bytes.Buffer

	handler := func(_ context.Context, method string, params json.RawMessage) (interface{}, *ErrorObject) {
		switch method {
		case "echo":
			var p struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(params, &p)
			return map[string]string{"echoed": p.Text}, nil
		default:
			return nil, &ErrorObject{Code: CodeMethodNotFound, Message: "unknown method: " + method}
		}
	}

	s := NewServer(input, &out, handler)
	require.NoError(t, s.Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var r1 Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &r1))
	assert.Equal(t, json.RawMessage("1"), r1.ID)
	assert.Nil(t, r1.Error)

	var r2 Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &r2))
	assert.Equal(t, json.RawMessage("2"), r2.ID)
	require.NotNil(t, r2.Error)
	assert.Equal(t, CodeMethodNotFound, r2.Error.Code)
}

func TestServer_NotificationProducesNoResponse(t *testing.T) {
	input := strings.NewReader(`{"jsonrpc":"2.0","method":"ping","params":null}` + "\n")
	var out bytes.Buffer

	called := false
	handler := func(_ context.Context, method string, _ json.RawMessage) (interface{}, *ErrorObject) {
		called = true
		return "pong", nil
	}

	s := NewServer(input, &out, handler)
	require.NoError(t, s.Serve(context.Background()))

	assert.True(t, called)
	assert.Empty(t, out.String())
}

func TestServer_MalformedLineYieldsParseError(t *testing.T) {
	input := strings.NewReader(`not json` + "\n")
	var out bytes.Buffer

	handler := func(context.Context, string, json.RawMessage) (interface{}, *ErrorObject) {
		t.Fatal("handler should not be called for a malformed line")
		return nil, nil
	}

	s := NewServer(input, &out, handler)
	require.NoError(t, s.Serve(context.Background()))

	var r Response
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &r))
	require.NotNil(t, r.Error)
	assert.Equal(t, CodeParseError, r.Error.Code)
}

func TestServer_Notify(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(strings.NewReader(""), &out, nil)

	require.NoError(t, s.Notify("repl_dead", map[string]string{"reason": "timeout"}))

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &frame))
	assert.Equal(t, "repl_dead", frame["method"])
	assert.NotContains(t, frame, "id")
}
