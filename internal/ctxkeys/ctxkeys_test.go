package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) (string, bool)
	}{
		{"request id", WithRequestID, RequestID},
		{"trace id", WithTraceID, TraceID},
		{"principal", WithPrincipal, Principal},
		{"conversation id", WithConversationID, ConversationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.get(context.Background())
			assert.False(t, ok)

			_, ok = tt.get(tt.set(context.Background(), ""))
			assert.False(t, ok, "empty values read as unset")

			v, ok := tt.get(tt.set(context.Background(), "abc"))
			assert.True(t, ok)
			assert.Equal(t, "abc", v)
		})
	}
}

func TestContextKeys_Independent(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithPrincipal(ctx, "agent@example.com")

	_, ok := ConversationID(ctx)
	assert.False(t, ok)
	v, _ := RequestID(ctx)
	assert.Equal(t, "req-1", v)
}
