package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/livite/outreach-backend/internal/clock"
	"github.com/livite/outreach-backend/internal/mail"
	"github.com/livite/outreach-backend/internal/queue"
)

// Step names accepted by RunStep, in pipeline order.
const (
	StepDrafts    = "drafts"
	StepFollowups = "followups"
	StepSend      = "send"
	StepResponses = "responses"
	StepUndo      = "undo"
	StepConvert   = "convert"
	StepCleanup   = "cleanup"
	// StepBackfill is ops-only: it sweeps Not Contacted games without a
	// Create Draft flag. Never part of the scheduled pipeline.
	StepBackfill = "backfill"
)

var StepNames = []string{
	StepDrafts, StepFollowups, StepSend, StepResponses,
	StepUndo, StepConvert, StepCleanup, StepBackfill,
}

// RunSummary is the structured result of one pipeline run.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Drafts    DraftStats
	Followups FollowupStats
	Dispatch  DispatchStats
	Replies   ReplyStats
	Undo      UndoStats
	Convert   ConvertStats
	Cleanup   CleanupStats

	// Issues is empty on a healthy run.
	Issues []string
	// MailOK is false when the provider auth preflight failed and mail
	// steps were skipped.
	MailOK bool
}

func (s RunSummary) Healthy() bool { return len(s.Issues) == 0 }

// Orchestrator is the single entry point: it runs every step in a fixed
// order, isolates their failures, and reports one health verdict.
type Orchestrator struct {
	Mail   mail.Provider
	Clock  clock.Clock
	Events queue.Publisher

	Drafts    *DraftGenerator
	Followups *FollowupScheduler
	Dispatch  *Dispatcher
	Replies   *ReplyClassifier
	Undo      *UndoEngine
	Convert   *Converter
	Cleanup   *Cleanup
}

// Run executes the full pipeline. A failed step degrades the run but never
// aborts it; store-only steps run even when mail auth is down.
func (o *Orchestrator) Run(ctx context.Context) RunSummary {
	summary := RunSummary{StartedAt: o.Clock.Now(), MailOK: true}

	log.Println(strings.Repeat("=", 50))
	log.Println("OUTREACH PIPELINE RUN")
	log.Println(strings.Repeat("=", 50))

	// Preflight: one cheap authenticated call. An auth failure here
	// short-circuits every provider-dependent step for the whole run.
	if _, err := o.Mail.Address(ctx); err != nil {
		log.Println("⚠️ Mail auth preflight failed, skipping send and reply steps:", err)
		summary.MailOK = false
		summary.Issues = append(summary.Issues, "mail auth failed")
	}

	summary.Drafts = o.Drafts.Run(ctx)
	if summary.Drafts.Failed > 0 {
		summary.Issues = append(summary.Issues, fmt.Sprintf("drafts: %d failed", summary.Drafts.Failed))
	}

	summary.Followups = o.Followups.Run(ctx)
	if summary.Followups.Failed > 0 {
		summary.Issues = append(summary.Issues, fmt.Sprintf("followups: %d failed", summary.Followups.Failed))
	}

	if summary.MailOK {
		summary.Dispatch = o.Dispatch.Run(ctx)
		if summary.Dispatch.Failed > 0 {
			summary.Issues = append(summary.Issues, fmt.Sprintf("send: %d failed", summary.Dispatch.Failed))
		}
		if summary.Dispatch.AuthFailed {
			// Credentials died mid-batch; reply checks would only
			// burn the same error again.
			summary.MailOK = false
			summary.Issues = append(summary.Issues, "mail auth failed")
		}
	}

	if summary.MailOK {
		summary.Replies = o.Replies.Run(ctx)
		if summary.Replies.Failed > 0 {
			summary.Issues = append(summary.Issues, fmt.Sprintf("responses: %d failed", summary.Replies.Failed))
		}
		if summary.Replies.AuthFailed {
			summary.MailOK = false
			summary.Issues = append(summary.Issues, "mail auth failed")
		}
	}

	// Undo runs before conversion so a same-cycle undo wins over a
	// re-conversion.
	summary.Undo = o.Undo.Run(ctx)
	if summary.Undo.Failed > 0 {
		summary.Issues = append(summary.Issues, fmt.Sprintf("undo: %d failed", summary.Undo.Failed))
	}

	summary.Convert = o.Convert.Run(ctx)
	if summary.Convert.Failed > 0 {
		summary.Issues = append(summary.Issues, fmt.Sprintf("convert: %d failed", summary.Convert.Failed))
	}

	summary.Cleanup = o.Cleanup.Run(ctx)
	if summary.Cleanup.Failed > 0 {
		summary.Issues = append(summary.Issues, fmt.Sprintf("cleanup: %d failed", summary.Cleanup.Failed))
	}

	summary.FinishedAt = o.Clock.Now()
	o.logSummary(summary)
	o.publish(summary)
	return summary
}

// RunStep executes one named step in isolation, for backfills and ops.
func (o *Orchestrator) RunStep(ctx context.Context, name string) (RunSummary, error) {
	summary := RunSummary{StartedAt: o.Clock.Now(), MailOK: true}
	switch name {
	case StepDrafts:
		summary.Drafts = o.Drafts.Run(ctx)
	case StepFollowups:
		summary.Followups = o.Followups.Run(ctx)
	case StepSend:
		summary.Dispatch = o.Dispatch.Run(ctx)
	case StepResponses:
		summary.Replies = o.Replies.Run(ctx)
	case StepUndo:
		summary.Undo = o.Undo.Run(ctx)
	case StepConvert:
		summary.Convert = o.Convert.Run(ctx)
	case StepCleanup:
		summary.Cleanup = o.Cleanup.Run(ctx)
	case StepBackfill:
		summary.Drafts = o.Drafts.Backfill(ctx)
	default:
		return summary, fmt.Errorf("unknown step %q (valid: %s)", name, strings.Join(StepNames, ", "))
	}
	if summary.Dispatch.AuthFailed || summary.Replies.AuthFailed {
		summary.MailOK = false
		summary.Issues = append(summary.Issues, "mail auth failed")
	}
	summary.FinishedAt = o.Clock.Now()
	return summary, nil
}

func (o *Orchestrator) logSummary(s RunSummary) {
	log.Println(strings.Repeat("-", 50))
	log.Printf("Drafts created: %d", s.Drafts.Created)
	if s.Followups.Created > 0 {
		log.Printf("Follow-up drafts: %d", s.Followups.Created)
	}
	sentLine := fmt.Sprintf("Emails sent: %d", s.Dispatch.Sent)
	if s.Dispatch.Deferred > 0 {
		sentLine += fmt.Sprintf(" (%d deferred to next cycle)", s.Dispatch.Deferred)
	}
	log.Println(sentLine)
	log.Printf("Responses found: %d", s.Replies.Replies)
	if total := s.Undo.Orders + s.Undo.Outreach + s.Undo.Dashboard; total > 0 {
		log.Printf("Undone: %d order(s), %d outreach(es), %d dashboard", s.Undo.Orders, s.Undo.Outreach, s.Undo.Dashboard)
	}
	log.Printf("Orders created: %d", s.Convert.Created)
	if s.Cleanup.Archived > 0 {
		log.Printf("Expired emails archived: %d", s.Cleanup.Archived)
	}
	if s.Cleanup.Missed > 0 || s.Cleanup.NoResponse > 0 {
		log.Printf("Games marked: %d missed, %d no response", s.Cleanup.Missed, s.Cleanup.NoResponse)
	}
	if s.Healthy() {
		log.Println("HEALTH: OK")
	} else {
		log.Printf("HEALTH: DEGRADED (%s)", strings.Join(s.Issues, "; "))
	}
	log.Println(strings.Repeat("=", 50))
}

func (o *Orchestrator) publish(s RunSummary) {
	o.Events.PublishRun(queue.RunEvent{
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		Healthy:        s.Healthy(),
		DraftsCreated:  s.Drafts.Created,
		FollowupsMade:  s.Followups.Created,
		EmailsSent:     s.Dispatch.Sent,
		EmailsDeferred: s.Dispatch.Deferred,
		Responses:      s.Replies.Replies,
		Orders:         s.Convert.Created,
		Undos:          s.Undo.Orders + s.Undo.Outreach + s.Undo.Dashboard,
		Errors:         s.Issues,
	})
}
