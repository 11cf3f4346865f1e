// Package gateway implements the decision gateway: the orchestrator that
// runs every other component in sequence for one tool call and produces
// the allow/deny verdict the producer must honor.
//
// The overall shape — a single EvaluateDecision-style entry point that
// delegates to a pluggable policy backend, falls back on failure, and
// records the outcome to an append-only audit log before returning — is
// a Clock-injectable, Set*-wired orchestrator in the style of a guardian
// evaluation loop. It never panics or hard-fails closed-over state: every
// suspension point here is a cooperative yield, not a goroutine boundary.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safeclaw/core/internal/audit"
	"github.com/safeclaw/core/internal/cache"
	"github.com/safeclaw/core/internal/classify"
	"github.com/safeclaw/core/internal/mcp"
	"github.com/safeclaw/core/internal/workspace"
	"github.com/safeclaw/core/pkg/envelope"
)

// Clock abstracts wall-clock time so approval-polling deadlines are
// testable without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Backend is the pluggable source of a remote-or-local policy verdict.
// controlplane.Client and a local policy.Document both satisfy this
// through small adapters, so the gateway is agnostic to which is in play
// for a given deployment profile.
type Backend interface {
	Evaluate(ctx context.Context, env envelope.Envelope) (BackendResult, error)
}

// BackendResult is what a Backend returns for one envelope.
type BackendResult struct {
	Outcome   envelope.Outcome
	Reason    string
	ReceiptID string // non-empty only when Outcome == require_approval
}

// ReceiptPoller checks the status of a pending approval. Terminal statuses
// are mapped as: approved/allowed → allow, rejected/denied/expired →
// deny; anything else means still pending.
type ReceiptPoller interface {
	GetReceipt(ctx context.Context, id string) (status string, reason string, err error)
}

// Notifier delivers the fire-and-forget side effects the gateway emits
// around AWAITING_APPROVAL. All methods must not block the decision;
// Gateway calls them without waiting on their result beyond a short
// best-effort send.
type Notifier interface {
	ApprovalRequired(env envelope.Envelope, receiptID string)
	ApprovalResolved(env envelope.Envelope, receiptID string, outcome envelope.Outcome)
}

// noopNotifier discards every event; used when no notifier is configured.
type noopNotifier struct{}

func (noopNotifier) ApprovalRequired(envelope.Envelope, string)                  {}
func (noopNotifier) ApprovalResolved(envelope.Envelope, string, envelope.Outcome) {}

// Config bundles the gateway's tunables, each with a documented default.
type Config struct {
	ApprovalTimeout time.Duration // default 300s
	PollInterval    time.Duration // default 3s
	CacheTTL        int           // seconds; used when caching a remote allow
	Profile         string        // recorded on every audit entry
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ApprovalTimeout: 300 * time.Second,
		PollInterval:    3 * time.Second,
		CacheTTL:        3600,
		Profile:         "default",
	}
}

// Gateway wires every other component together for one call to Decide.
type Gateway struct {
	backend        Backend
	poller         ReceiptPoller
	ledger         *audit.Ledger
	cache          *cache.Cache
	notifier       Notifier
	changeDetector *classify.ChangeDetector
	mcpSchemas     *mcp.SchemaRegistry
	clock          Clock
	cfg            Config

	workspaceCfg *workspace.Config // nil disables the workspace guard
}

// New constructs a Gateway. backend and ledger are required; everything
// else is optional and defaults to a no-op.
func New(backend Backend, ledger *audit.Ledger, cfg Config) *Gateway {
	return &Gateway{
		backend:  backend,
		ledger:   ledger,
		notifier: noopNotifier{},
		clock:    wallClock{},
		cfg:      cfg,
	}
}

// SetPoller injects the receipt poller used while AWAITING_APPROVAL.
func (g *Gateway) SetPoller(p ReceiptPoller) { g.poller = p }

// SetCache injects the offline decision cache.
func (g *Gateway) SetCache(c *cache.Cache) { g.cache = c }

// SetNotifier injects the fire-and-forget notification sink.
func (g *Gateway) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	g.notifier = n
}

// SetChangeDetector injects the tool-fingerprint drift detector so a
// changed MCP tool forces a fresh (non-cached) decision.
func (g *Gateway) SetChangeDetector(d *classify.ChangeDetector) { g.changeDetector = d }

// SetMCPSchemas injects the per-action-type input schema registry. When
// set, an mcp__-prefixed tool call is validated against its registered
// schema (if any) right after classification assigns its action type but
// before any workspace or remote decision is attempted, so a malformed
// call is denied at the door instead of being evaluated against a shape
// it was never meant to have.
func (g *Gateway) SetMCPSchemas(r *mcp.SchemaRegistry) { g.mcpSchemas = r }

// SetClock overrides the wall clock (tests only).
func (g *Gateway) SetClock(c Clock) { g.clock = c }

// SetWorkspace injects the resolved workspace config for this process.
// A nil config (the default) disables the workspace guard entirely.
func (g *Gateway) SetWorkspace(cfg *workspace.Config) { g.workspaceCfg = cfg }

// Decide runs the full state machine for one tool call and
// returns the producer-facing Decision. It never returns an error: every
// failure mode the underlying components can produce resolves to a
// Decision per the fail-closed defaults below instead.
func (g *Gateway) Decide(ctx context.Context, toolName string, toolInput map[string]any) envelope.Decision {
	taskID := uuid.NewString()

	result := classify.Classify(toolName, toolInput)
	env := result.Envelope

	if g.changeDetector != nil {
		desc := classify.DescribeFromInput(toolName, toolInput)
		if changed, reason := g.changeDetector.Observe(desc); changed {
			slog.Warn("gateway: tool shape changed, forcing reevaluation", "tool", toolName, "reason", reason)
		}
	}

	if g.mcpSchemas != nil && strings.HasPrefix(toolName, "mcp__") {
		if err := g.mcpSchemas.Validate(env.Type, toolInput); err != nil {
			return g.finish(env, toolName, taskID, "", result.Risks, envelope.Deny("MCP input failed schema validation: "+err.Error()), audit.SourceFailClosed)
		}
	}

	if g.workspaceCfg != nil && envelope.IsFilesystem(env.Type) {
		if !workspace.IsAllowed(env.Resource, g.workspaceCfg) {
			return g.finish(env, toolName, taskID, "", result.Risks, envelope.Deny("path is outside workspace"), audit.SourceWorkspaceDeny)
		}
	}

	if envelope.IsSafeRead(env.Type) {
		return g.finish(env, toolName, taskID, "", result.Risks, envelope.Allow("Local pre-filter: safe read"), audit.SourceLocalPrefilter)
	}

	return g.decideRemote(ctx, env, toolName, taskID, result.Risks)
}

func (g *Gateway) decideRemote(ctx context.Context, env envelope.Envelope, toolName, taskID string, risks envelope.RiskSignals) envelope.Decision {
	if err := ctxErr(ctx); err != nil {
		return g.finish(env, toolName, taskID, "", risks, envelope.Deny("Hook aborted"), audit.SourceFailClosed)
	}

	br, err := g.backend.Evaluate(ctx, env)
	if err != nil {
		return g.decideOnNetworkFailure(env, toolName, taskID, risks)
	}

	if g.changeDetector != nil {
		g.changeDetector.Acknowledge(toolName)
	}

	switch br.Outcome {
	case envelope.OutcomeAllow:
		if g.cache != nil {
			_ = g.cache.Put(env.Type, env.Resource, envelope.OutcomeAllow, g.cfg.CacheTTL)
		}
		return g.finish(env, toolName, taskID, "", risks, envelope.Allow(br.Reason), audit.SourceAuthensor)
	case envelope.OutcomeDeny:
		return g.finish(env, toolName, taskID, "", risks, envelope.Deny(br.Reason), audit.SourceAuthensor)
	case envelope.OutcomeRequireApproval:
		return g.awaitApproval(ctx, env, toolName, taskID, risks, br.ReceiptID)
	default:
		return g.finish(env, toolName, taskID, "", risks, envelope.Deny("unknown outcome from control plane"), audit.SourceFailClosed)
	}
}

// decideOnNetworkFailure falls back to the offline cache, unless the
// change detector has flagged toolName as having drifted since its last
// observed shape: a live TTL entry cached against the tool's old shape
// must not be trusted for its new one, so a pending drift forces the same
// fail-closed deny a cache miss would produce.
func (g *Gateway) decideOnNetworkFailure(env envelope.Envelope, toolName, taskID string, risks envelope.RiskSignals) envelope.Decision {
	driftPending := g.changeDetector != nil && g.changeDetector.NeedsReevaluation(toolName)
	if g.cache != nil && !driftPending {
		if _, ok := g.cache.Get(env.Type, env.Resource); ok {
			return g.finish(env, toolName, taskID, "", risks, envelope.Allow("offline cache hit"), audit.SourceOfflineCache)
		}
	}
	return g.finish(env, toolName, taskID, "", risks, envelope.Deny("control plane unreachable, fail-closed"), audit.SourceFailClosed)
}

// awaitApproval runs the cooperative poll loop while a decision is pending human review.
func (g *Gateway) awaitApproval(ctx context.Context, env envelope.Envelope, toolName, taskID string, risks envelope.RiskSignals, receiptID string) envelope.Decision {
	g.notifier.ApprovalRequired(env, receiptID)

	deadline := g.clock.Now().Add(g.cfg.ApprovalTimeout)

	for {
		if err := ctxErr(ctx); err != nil {
			d := envelope.Deny("Hook aborted")
			g.notifier.ApprovalResolved(env, receiptID, d.Outcome)
			return g.finish(env, toolName, taskID, receiptID, risks, d, audit.SourceFailClosed)
		}

		if g.clock.Now().After(deadline) {
			d := envelope.Deny("timeout")
			g.notifier.ApprovalResolved(env, receiptID, d.Outcome)
			return g.finish(env, toolName, taskID, receiptID, risks, d, audit.SourceFailClosed)
		}

		g.clock.Sleep(g.cfg.PollInterval)

		if g.poller == nil {
			continue
		}

		status, reason, err := g.poller.GetReceipt(ctx, receiptID)
		if err != nil {
			slog.Debug("gateway: transient error polling receipt", "receiptId", receiptID, "error", err)
			continue
		}

		switch status {
		case "approved", "allowed":
			d := envelope.Allow(reason)
			g.notifier.ApprovalResolved(env, receiptID, d.Outcome)
			return g.finish(env, toolName, taskID, receiptID, risks, d, audit.SourceAuthensor)
		case "rejected", "denied", "expired":
			d := envelope.Deny(reason)
			g.notifier.ApprovalResolved(env, receiptID, d.Outcome)
			return g.finish(env, toolName, taskID, receiptID, risks, d, audit.SourceAuthensor)
		default:
			// still pending; loop again
		}
	}
}

// finish writes the audit entry and returns the decision. The audit write
// strictly precedes the return; a write
// failure is logged and swallowed, never surfaced to the producer. taskID
// is a per-Decide-call correlation ID, letting an external log aggregator
// join this entry back to the tool call that produced it. receiptID is
// empty except on the approval path, where it identifies the receipt the
// decision was ultimately resolved against.
func (g *Gateway) finish(env envelope.Envelope, toolName, taskID, receiptID string, risks envelope.RiskSignals, decision envelope.Decision, source audit.Source) envelope.Decision {
	entry := audit.Entry{
		Timestamp:   g.clock.Now().UTC().Format(time.RFC3339),
		ToolName:    toolName,
		ActionType:  env.Type,
		Resource:    env.Resource,
		Outcome:     decision.Outcome,
		ReceiptID:   receiptID,
		TaskID:      taskID,
		Profile:     g.cfg.Profile,
		Source:      source,
		RiskSignals: risks,
	}
	if g.ledger != nil {
		if err := g.ledger.Append(entry); err != nil {
			slog.Debug("gateway: audit append failed, decision unaffected", "error", err)
		}
	}
	return decision
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return errors.New("cancelled")
	default:
		return nil
	}
}
