package agent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DispatchAll dispatches independent conversations concurrently, at most
// MaxConcurrentDispatches at a time. results[i] belongs to states[i].
// Every state must belong to a different conversation.
func (o *Orchestrator) DispatchAll(ctx context.Context, states []*ConversationState) []*ConversationState {
	results := make([]*ConversationState, len(states))
	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrentDispatches)
	for i, s := range states {
		g.Go(func() error {
			results[i] = o.Dispatch(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HandleAll is DispatchAll for raw requests.
func (o *Orchestrator) HandleAll(ctx context.Context, reqs []DispatchRequest) []DispatchResult {
	states := make([]*ConversationState, len(reqs))
	for i, r := range reqs {
		states[i] = NewConversationState(r)
	}
	out := make([]DispatchResult, len(reqs))
	for i, s := range o.DispatchAll(ctx, states) {
		out[i] = s.Result()
	}
	return out
}
