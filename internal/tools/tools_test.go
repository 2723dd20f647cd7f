package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvocation(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
		tool string
	}{
		{"valid", `{"tool":"crm","data":{"name":"Ann"}}`, true, "crm"},
		{"no data", `{"tool":"crm"}`, true, "crm"},
		{"fenced", "```json\n{\"tool\":\"crm\",\"data\":{}}\n```", true, "crm"},
		{"leading space", "  {\"tool\":\"notes\",\"data\":{}}", true, "notes"},
		{"plain text", "Sure, I can help with that.", false, ""},
		{"malformed", `{"tool":"crm","data":`, false, ""},
		{"empty tool", `{"tool":"","data":{}}`, false, ""},
		{"missing tool", `{"data":{}}`, false, ""},
		{"tool not string", `{"tool":5}`, false, ""},
		{"data not object", `{"tool":"crm","data":[1,2]}`, false, ""},
		{"array", `[{"tool":"crm"}]`, false, ""},
		{"empty", ``, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv, ok := ParseInvocation(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.tool, inv.Tool)
			if ok {
				assert.NotNil(t, inv.Data)
			}
		})
	}
}

var leadSchema = json.RawMessage(`{
	"type": "object",
	"required": ["name"],
	"properties": {"name": {"type": "string"}, "phone": {"type": "string"}}
}`)

func TestRegistry_ValidateAgainstSchema(t *testing.T) {
	r, err := NewRegistry(Tool{Name: "crm", Label: "the CRM", Schema: leadSchema}, Tool{Name: "notes"})
	require.NoError(t, err)

	assert.NoError(t, r.Validate(Invocation{Tool: "crm", Data: map[string]any{"name": "Ann"}}))
	assert.ErrorIs(t, r.Validate(Invocation{Tool: "crm", Data: map[string]any{"phone": "1"}}), ErrInvalidData)
	assert.NoError(t, r.Validate(Invocation{Tool: "notes", Data: map[string]any{}}))
	assert.ErrorIs(t, r.Validate(Invocation{Tool: "other"}), ErrToolNotFound)
	assert.ElementsMatch(t, []string{"crm", "notes"}, r.Names())

	_, err = NewRegistry(Tool{Name: " "})
	assert.ErrorIs(t, err, ErrToolNameRequired)
	_, err = NewRegistry(Tool{Name: "bad", Schema: json.RawMessage(`{"type": 12}`)})
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"crm","label":"HubSpot"}]`), 0o600))
	r, err := LoadRegistry(path)
	require.NoError(t, err)
	tool, ok := r.Lookup("crm")
	require.True(t, ok)
	assert.Equal(t, "HubSpot", tool.DisplayName())

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDispatcher_ResolveFallsBackToSpeech(t *testing.T) {
	r, err := NewRegistry(Tool{Name: "crm", Label: "the CRM", Schema: leadSchema})
	require.NoError(t, err)
	d := NewDispatcher(r, nil, 0, nil)

	_, tool, ok := d.Resolve(`{"tool":"crm","data":{"name":"Ann"}}`)
	require.True(t, ok)
	assert.Equal(t, "the CRM", tool.Label)

	_, _, ok = d.Resolve(`{"tool":"calendar","data":{}}`)
	assert.False(t, ok)
	_, _, ok = d.Resolve(`{"tool":"crm","data":{}}`)
	assert.False(t, ok)
	_, _, ok = d.Resolve("hello there")
	assert.False(t, ok)

	var nilDispatcher *Dispatcher
	_, _, ok = nilDispatcher.Resolve(`{"tool":"crm"}`)
	assert.False(t, ok)
}

func TestDispatcher_Confirmations(t *testing.T) {
	r, err := NewRegistry(Tool{Name: "crm", Label: "the CRM"})
	require.NoError(t, err)
	var outcomes []string
	ok := NewDispatcher(r, ExecutorFunc(func(context.Context, Invocation) error { return nil }), 0, nil)
	ok.OnDispatch = func(tool, outcome string) { outcomes = append(outcomes, tool+":"+outcome) }
	msg, err := ok.Dispatch(context.Background(), Invocation{Tool: "crm"}, Tool{Name: "crm", Label: "the CRM"})
	require.NoError(t, err)
	assert.Equal(t, "Saved to the CRM.", msg)

	bad := NewDispatcher(r, ExecutorFunc(func(context.Context, Invocation) error { return errors.New("503") }), 0, nil)
	bad.OnDispatch = ok.OnDispatch
	msg, err = bad.Dispatch(context.Background(), Invocation{Tool: "crm"}, Tool{Name: "crm", Label: "the CRM"})
	assert.Error(t, err)
	assert.Equal(t, "There was an issue saving to the CRM.", msg)
	assert.Equal(t, []string{"crm:success", "crm:failure"}, outcomes)

	msg, _ = NewDispatcher(r, nil, 0, nil).Dispatch(context.Background(), Invocation{Tool: "crm"}, Tool{Name: "crm"})
	assert.Equal(t, "There was an issue saving to crm.", msg)
}

func TestWebhookExecutor(t *testing.T) {
	var gotPath, gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		if r.URL.Path == "/hooks/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ex := NewWebhookExecutor(srv.URL+"/hooks/", "s3cret")
	err := ex.Execute(context.Background(), Invocation{Tool: "crm", Data: map[string]any{"name": "Ann"}})
	require.NoError(t, err)
	assert.Equal(t, "/hooks/crm", gotPath)
	assert.True(t, Verify("s3cret", gotSig, gotBody))
	assert.JSONEq(t, `{"tool":"crm","data":{"name":"Ann"}}`, string(gotBody))

	err = ex.Execute(context.Background(), Invocation{Tool: "broken"})
	assert.Error(t, err)

	assert.Error(t, NewWebhookExecutor("", "").Execute(context.Background(), Invocation{Tool: "x"}))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("k", body)
	assert.True(t, Verify("k", sig, body))
	assert.False(t, Verify("other", sig, body))
	assert.False(t, Verify("k", "", body))
	assert.False(t, Verify("", sig, body))
}
