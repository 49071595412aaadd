// Package router assigns session ids and produces routing suggestions
// from the intent classifier.
package router

import (
	"context"

	"github.com/google/uuid"

	"github.com/opsdesk/dispatch/pkg/intent"
)

// Result is the output of one routing call.
type Result struct {
	SessionID         string
	SuggestedAgentIDs []string
}

// Router maps an incoming message to a session id and an ordered list of
// candidate agent ids.
type Router struct {
	classifier intent.Classifier
}

// NewRouter creates a router over the given classifier.
func NewRouter(classifier intent.Classifier) *Router {
	return &Router{classifier: classifier}
}

// Route accepts or assigns a session id and classifies the message.
// The classifier's ordered suggestion list is returned unchanged.
func (r *Router) Route(ctx context.Context, userID, message, sessionID string) Result {
	sid := sessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	return Result{
		SessionID:         sid,
		SuggestedAgentIDs: r.classifier.Classify(ctx, message),
	}
}
