package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/switchboard/agent"
)

func TestReadBatch(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr string
	}{
		{"two requests", `[{"current_message":"refund"},{"conversation_id":"c-1","current_message":"hi"}]`, 2, ""},
		{"not json", `refund please`, 0, "decode batch"},
		{"empty", `[]`, 0, "batch is empty"},
		{"blank message", `[{"current_message":"  "}]`, 0, "current_message is required"},
		{"duplicate conversation", `[{"conversation_id":"c-1","current_message":"a"},{"conversation_id":"c-1","current_message":"b"}]`, 0, "already appears"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := readBatch(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, reqs, tt.wantLen)
		})
	}
}

func TestBatchDispatch_KeepsOrder(t *testing.T) {
	app := newTestApp(t, newTestConfig(t))
	reqs, err := readBatch(strings.NewReader(`[
		{"conversation_id":"a","current_message":"I need an invoice copy"},
		{"conversation_id":"b","current_message":"hello there"},
		{"conversation_id":"c","current_message":"refund or my lawyer hears about it"}
	]`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, app.orchestrator.HandleAll(context.Background(), reqs)))

	var results []agent.DispatchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &results))
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].ConversationID, results[1].ConversationID, results[2].ConversationID})
	assert.Contains(t, results[0].AgentHistory, "billing")
	assert.Contains(t, results[1].AgentHistory, "general")
	assert.Equal(t, agent.StatusEscalated, results[2].Status)
}
