package mail

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
)

// DryRun logs sends instead of performing them. Reads report an empty
// account so reply polling is a no-op.
type DryRun struct {
	FromAddress string
	seq         int64
}

func NewDryRun(from string) *DryRun {
	if from == "" {
		from = "dry-run@localhost"
	}
	return &DryRun{FromAddress: from}
}

func (d *DryRun) Send(ctx context.Context, to, subject, body, threadID string) (SendResult, error) {
	n := atomic.AddInt64(&d.seq, 1)
	log.Printf("🔍 [DRY RUN] would send email to %s: %q (%d chars)", to, subject, len(body))
	return SendResult{
		MessageID: fmt.Sprintf("dry-run-msg-%d", n),
		ThreadID:  fmt.Sprintf("dry-run-thr-%d", n),
	}, nil
}

func (d *DryRun) Thread(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	return nil, nil
}

func (d *DryRun) Address(ctx context.Context) (string, error) {
	return d.FromAddress, nil
}
