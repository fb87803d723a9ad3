package state

import (
	"context"

	"github.com/google/uuid"
)

// OutboxTask is one queued outbound fabric side effect for a room —
// a message send, reaction, receipt, or redaction — run in the order
// it was enqueued.
type OutboxTask struct {
	// TxnID is a fresh UUID minted by Enqueue and returned to its
	// caller. It is not passed to the task's fabric calls, so it plays
	// no part in recognizing the task's events on the sync stream.
	TxnID string
	Run   func(ctx context.Context)
}

// Outbox drains one room's OutboxTasks strictly in order on a single
// goroutine, so a message's read-receipt post always follows its
// content post.
type Outbox struct {
	tasks  chan OutboxTask
	cancel context.CancelFunc
}

// NewOutbox starts the drain goroutine bound to ctx; callers stop it
// via Close on room cleanup.
func NewOutbox(ctx context.Context) *Outbox {
	ctx, cancel := context.WithCancel(ctx)
	o := &Outbox{tasks: make(chan OutboxTask, 64), cancel: cancel}
	go o.run(ctx)
	return o
}

func (o *Outbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.tasks:
			t.Run(ctx)
		}
	}
}

// Enqueue appends a task under a freshly minted transaction id and
// returns that id.
func (o *Outbox) Enqueue(run func(ctx context.Context)) string {
	txnID := uuid.NewString()
	o.tasks <- OutboxTask{TxnID: txnID, Run: run}
	return txnID
}

// Close cancels the drain goroutine. Already-enqueued-but-not-yet-run
// tasks are dropped.
func (o *Outbox) Close() {
	o.cancel()
}
