package gateway

import (
	"context"
	"errors"

	"github.com/safeclaw/core/internal/controlplane"
	"github.com/safeclaw/core/internal/policy"
	"github.com/safeclaw/core/pkg/envelope"
)

// RemoteBackend adapts a controlplane.Client to the Backend interface,
// for deployments where REMOTE_NEEDED actions are decided by the hosted
// authensor service.
type RemoteBackend struct {
	Client *controlplane.Client
}

// Evaluate delegates to the control plane. An already-expired bearer
// token fails locally rather than spending a round trip on a guaranteed
// 401, so it is treated the same as any other reachability failure and
// falls through to the gateway's offline-cache-or-deny path.
func (b RemoteBackend) Evaluate(ctx context.Context, env envelope.Envelope) (BackendResult, error) {
	if b.Client.BearerTokenExpired() {
		return BackendResult{}, errors.New("controlplane: bearer token expired")
	}
	resp, err := b.Client.Evaluate(ctx, env)
	if err != nil {
		return BackendResult{}, err
	}
	return BackendResult{Outcome: resp.Outcome, Reason: resp.Reason, ReceiptID: resp.ReceiptID}, nil
}

// GetReceipt satisfies ReceiptPoller by delegating to the same client.
func (b RemoteBackend) GetReceipt(ctx context.Context, id string) (status string, reason string, err error) {
	receipt, err := b.Client.GetReceipt(ctx, id)
	if err != nil {
		return "", "", err
	}
	return receipt.Status, receipt.Reason, nil
}

// LocalBackend adapts an in-memory policy.Document to the Backend
// interface, for the offline/self-hosted profile where no control plane
// is configured at all and every non-safe-read action is decided by the
// locally evaluated policy document instead. It never produces
// require_approval — a local-only deployment has no human approval queue
// to poll, so a rule that would require approval degrades to deny.
type LocalBackend struct {
	Document *policy.Document
	Clock    policy.Clock
}

// Evaluate runs the policy evaluator against env.
func (b LocalBackend) Evaluate(_ context.Context, env envelope.Envelope) (BackendResult, error) {
	decision := policy.Evaluate(b.Document, env, b.Clock)
	outcome := decision.Effect
	if outcome == envelope.OutcomeRequireApproval {
		outcome = envelope.OutcomeDeny
		decision.Reason = "require_approval has no local approver: " + decision.Reason
	}
	return BackendResult{Outcome: outcome, Reason: decision.Reason}, nil
}
