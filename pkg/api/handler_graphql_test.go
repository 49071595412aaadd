package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/dispatch/pkg/models"
)

func seedConversation(t *testing.T, f *apiFixture, sessionID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.AppendTurn(ctx, sessionID, models.Turn{
		Role: models.RoleUser, Content: "where is my refund?",
	}))
	require.NoError(t, f.store.AppendTurn(ctx, sessionID, models.Turn{
		Role: models.RoleAssistant, Content: "It posts within 2 days.",
		Metadata: map[string]any{"agent_id": "billing"},
	}))
}

func doGraphQL(t *testing.T, f *apiFixture, body string) (int, map[string]any) {
	t.Helper()
	rec := f.do(postJSON("/graphql", body))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestGraphQL_Conversation(t *testing.T) {
	f := newAPIFixture(t)
	seedConversation(t, f, "sess-1")

	code, resp := doGraphQL(t, f, `{
		"query": "query($sid: String!) { conversation(session_id: $sid) { session_id turns { role content metadata_json } } }",
		"variables": {"sid": "sess-1"}
	}`)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp["errors"])

	conv := resp["data"].(map[string]any)["conversation"].(map[string]any)
	assert.Equal(t, "sess-1", conv["session_id"])

	turns := conv["turns"].([]any)
	require.Len(t, turns, 2)
	first := turns[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "where is my refund?", first["content"])
	assert.JSONEq(t, `{}`, first["metadata_json"].(string))
	second := turns[1].(map[string]any)
	assert.Equal(t, "assistant", second["role"])
	assert.JSONEq(t, `{"agent_id":"billing"}`, second["metadata_json"].(string))
}

func TestGraphQL_ConversationUnknownSessionIsNull(t *testing.T) {
	f := newAPIFixture(t)

	code, resp := doGraphQL(t, f, `{
		"query": "{ conversation(session_id: \"ghost\") { session_id } }"
	}`)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp["errors"])
	assert.Nil(t, resp["data"].(map[string]any)["conversation"])
}

func TestGraphQL_ConversationLimit(t *testing.T) {
	f := newAPIFixture(t)
	seedConversation(t, f, "sess-1")
	seedConversation(t, f, "sess-1")

	code, resp := doGraphQL(t, f, `{
		"query": "{ conversation(session_id: \"sess-1\", limit: 2) { turns { content } } }"
	}`)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp["errors"])

	turns := resp["data"].(map[string]any)["conversation"].(map[string]any)["turns"].([]any)
	assert.Len(t, turns, 2)
}

func TestGraphQL_Sessions(t *testing.T) {
	f := newAPIFixture(t)
	seedConversation(t, f, "sess-1")
	seedConversation(t, f, "sess-2")

	code, resp := doGraphQL(t, f, `{
		"query": "{ sessions { session_id } }"
	}`)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp["errors"])

	sessions := resp["data"].(map[string]any)["sessions"].([]any)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-1", sessions[0].(map[string]any)["session_id"])
	assert.Equal(t, "sess-2", sessions[1].(map[string]any)["session_id"])
}

func TestGraphQL_MissingQuery(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(postJSON("/graphql", `{"variables":{}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphQL_UnknownFieldErrors(t *testing.T) {
	f := newAPIFixture(t)

	code, resp := doGraphQL(t, f, `{"query": "{ nonsense }"}`)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, resp["errors"])
}
