// Package cyclelog builds and seals the per-cycle record.
package cyclelog

import (
	"context"
	"fmt"
	"time"

	"auto_trader/internal/core"
	"auto_trader/pkg/telemetry"

	"github.com/google/uuid"
)

// Logger accumulates one cycle record at a time. Exactly one cycle may be
// open per logger; stages nest but do not overlap. A cycle is always sealed
// and appended atomically to the store, including failed and cancelled
// cycles.
type Logger struct {
	store  core.IStore
	logger core.ILogger
	now    func() time.Time

	current    *core.CycleRecord
	openStages []openStage
}

type openStage struct {
	name      string
	startedAt time.Time
}

// New creates a cycle logger backed by the store.
func New(store core.IStore, logger core.ILogger) *Logger {
	return &Logger{
		store:  store,
		logger: logger.WithField("component", "cycle_log"),
		now:    time.Now,
	}
}

// WithClock replaces the time source for tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// StartCycle opens a new cycle and returns its id.
func (l *Logger) StartCycle() (string, error) {
	if l.current != nil {
		return "", fmt.Errorf("cycle %s still open", l.current.ID)
	}
	l.current = &core.CycleRecord{
		ID:        uuid.NewString(),
		StartedAt: l.now(),
	}
	l.openStages = nil
	l.logger.Info("cycle started", "cycle_id", l.current.ID)
	return l.current.ID, nil
}

// StartStage marks the beginning of a named stage.
func (l *Logger) StartStage(name string) {
	if l.current == nil {
		return
	}
	l.openStages = append(l.openStages, openStage{name: name, startedAt: l.now()})
}

// EndStage closes the innermost open stage with the given name and records
// its timing.
func (l *Logger) EndStage(name string, success bool) {
	if l.current == nil {
		return
	}
	for i := len(l.openStages) - 1; i >= 0; i-- {
		if l.openStages[i].name != name {
			continue
		}
		stage := l.openStages[i]
		l.openStages = append(l.openStages[:i], l.openStages[i+1:]...)
		duration := l.now().Sub(stage.startedAt)
		l.current.Stages = append(l.current.Stages, core.StageTiming{
			Name:      name,
			StartedAt: stage.startedAt,
			Duration:  duration,
			Success:   success,
		})
		telemetry.GetGlobalMetrics().RecordStage(context.Background(), name, duration.Seconds(), success)
		return
	}
	l.logger.Warn("end of unopened stage", "stage", name)
}

// RecordTransaction appends one transaction in emission order.
func (l *Logger) RecordTransaction(tx core.Transaction) {
	if l.current == nil {
		return
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = l.now()
	}
	l.current.Transactions = append(l.current.Transactions, tx)
}

// RecordError appends one error against a stage.
func (l *Logger) RecordError(message, stage string) {
	if l.current == nil {
		return
	}
	l.current.Errors = append(l.current.Errors, core.CycleError{
		Timestamp: l.now(),
		Stage:     stage,
		Message:   message,
	})
}

// RecordSnapshot attaches a resource snapshot as the before or after image.
func (l *Logger) RecordSnapshot(snapshot *core.ResourceSnapshot, label string) {
	if l.current == nil || snapshot == nil {
		return
	}
	copied := *snapshot
	switch label {
	case "before":
		l.current.Before = &copied
	case "after":
		l.current.After = &copied
	default:
		l.logger.Warn("unknown snapshot label", "label", label)
	}
}

// RecordCondition attaches the market condition assessment.
func (l *Logger) RecordCondition(condition *core.MarketCondition) {
	if l.current == nil || condition == nil {
		return
	}
	copied := *condition
	l.current.Condition = &copied
}

// EndCycle seals the open cycle, computes roll-up totals from the
// transaction list, persists the record and returns it. Open stages are
// closed as failed so an aborted cycle still accounts for its time.
func (l *Logger) EndCycle(ctx context.Context, success, cancelled bool) (*core.CycleRecord, error) {
	if l.current == nil {
		return nil, fmt.Errorf("no open cycle")
	}

	for len(l.openStages) > 0 {
		l.EndStage(l.openStages[len(l.openStages)-1].name, false)
	}

	record := l.current
	l.current = nil
	record.EndedAt = l.now()
	record.Success = success
	record.Cancelled = cancelled

	for _, tx := range record.Transactions {
		switch tx.Kind {
		case core.TxPurchase:
			// Unknown-outcome purchases are treated as debited.
			if tx.Status == core.TxSuccess || tx.Status == core.TxUnknown {
				record.TotalSpent += tx.Total
			}
		case core.TxSale:
			if tx.Status == core.TxSuccess {
				record.TotalEarned += tx.Total
			}
		}
	}
	record.NetProfit = record.TotalEarned - record.TotalSpent

	m := telemetry.GetGlobalMetrics()
	if m.CyclesTotal != nil {
		m.CyclesTotal.Add(ctx, 1)
		if !success {
			m.CyclesFailedTotal.Add(ctx, 1)
		}
		m.CycleDuration.Record(ctx, record.EndedAt.Sub(record.StartedAt).Seconds())
		m.SpendTotal.Add(ctx, record.TotalSpent)
		m.EarnTotal.Add(ctx, record.TotalEarned)
	}

	if err := l.store.AppendCycleRecord(ctx, record); err != nil {
		return record, fmt.Errorf("append cycle record: %w", err)
	}
	l.logger.Info("cycle sealed",
		"cycle_id", record.ID,
		"success", success,
		"cancelled", cancelled,
		"transactions", len(record.Transactions),
		"spent", record.TotalSpent,
		"earned", record.TotalEarned,
		"net", record.NetProfit)
	return record, nil
}

// Open reports whether a cycle is currently open.
func (l *Logger) Open() bool { return l.current != nil }
