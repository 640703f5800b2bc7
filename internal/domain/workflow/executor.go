// Package workflow implements admission control and the two-phase
// suspend/resume workflow that drives every order: started on redemption,
// resumed when the customer submits drink details, finished when the barista
// completes or cancels, and timed out when either human takes too long.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/eventbus"
)

// Status is the lifecycle state of an execution record. RUNNING is the only
// non-terminal status; COMPLETED and TIMEOUT are terminal and irreversible.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusTimeout   Status = "TIMEOUT"
)

// Config tunes admission and timeout behaviour.
type Config struct {
	// MaxConcurrentOrders is the global ceiling of in-flight executions
	// across all events. Orders past the ceiling are rejected, never queued.
	MaxConcurrentOrders int
	// CustomerTimeout bounds the wait for the customer's drink submission.
	CustomerTimeout time.Duration
	// BaristaTimeout bounds the wait for the barista to finish the order.
	BaristaTimeout time.Duration
}

// DefaultConfig returns the production admission and timeout settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentOrders: 20,
		CustomerTimeout:     5 * time.Minute,
		BaristaTimeout:      15 * time.Minute,
	}
}

// CounterRepository allocates monotonically increasing order numbers.
type CounterRepository interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// execution is the ephemeral in-memory record of one in-flight order. It
// exists iff the order's workflow status is RUNNING and is destroyed on any
// terminal transition.
type execution struct {
	orderID   string
	userID    string
	eventID   string
	status    Status
	taskToken string
	startedAt time.Time
	timer     *time.Timer
}

// Executor owns the execution registry. The registry is never exposed; all
// mutation goes through Start/Resume/Complete and the timeout callbacks,
// serialized by one mutex, preserving the single-writer discipline that
// makes admission checks race-free.
type Executor struct {
	bus      *eventbus.Bus
	config   config.Repository
	counters CounterRepository
	cfg      Config
	lg       *zap.Logger

	mu         sync.Mutex
	executions map[string]*execution // keyed by orderID
}

// New creates an Executor. Call Register to attach it to the bus.
func New(bus *eventbus.Bus, cfgRepo config.Repository, counters CounterRepository, cfg Config, lg *zap.Logger) *Executor {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Executor{
		bus:        bus,
		config:     cfgRepo,
		counters:   counters,
		cfg:        cfg,
		lg:         lg.Named("workflow"),
		executions: make(map[string]*execution),
	}
}

// Register subscribes the executor to NewOrder events.
func (e *Executor) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicNewOrder, e.handleNewOrder)
}

// Running returns the number of in-flight executions.
func (e *Executor) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executions)
}

func (e *Executor) handleNewOrder(ctx context.Context, evt eventbus.Event) {
	detail, ok := evt.Detail.(eventbus.NewOrderDetail)
	if !ok {
		return
	}

	open, err := e.shopOpen(ctx, detail.EventID)
	if err != nil {
		zctx.From(ctx).Error("shop status check failed", zap.Error(err))
		return
	}
	if !open {
		e.rejectOrder(ctx, detail.UserID, detail.EventID, "shop is not open")
		return
	}

	if !e.admit(detail.OrderID, detail.UserID, detail.EventID) {
		e.rejectOrder(ctx, detail.UserID, detail.EventID, "shop is at capacity")
		return
	}

	e.startWorkflow(ctx, detail.OrderID)
}

// shopOpen reads the live event configuration; a missing config counts as
// closed.
func (e *Executor) shopOpen(ctx context.Context, eventID string) (bool, error) {
	cfg, err := e.config.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "load event config")
	}
	return cfg.StoreOpen, nil
}

// admit creates the execution record if capacity allows. Admission and
// record creation happen under one lock so the ceiling cannot be overrun by
// concurrent redemptions.
func (e *Executor) admit(orderID, userID, eventID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.executions) >= e.cfg.MaxConcurrentOrders {
		return false
	}
	e.executions[orderID] = &execution{
		orderID:   orderID,
		userID:    userID,
		eventID:   eventID,
		status:    StatusRunning,
		taskToken: uuid.NewString(),
		startedAt: time.Now(),
	}
	return true
}

func (e *Executor) rejectOrder(ctx context.Context, userID, eventID, reason string) {
	e.lg.Info("order rejected", zap.String("eventId", eventID), zap.String("reason", reason))
	e.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicShopUnavailable,
		Source: eventbus.Source,
		Detail: eventbus.ShopUnavailableDetail{
			UserID:  userID,
			EventID: eventID,
			Message: reason,
		},
	})
}

// startWorkflow publishes WorkflowStarted and arms the customer deadline for
// an already-admitted order.
func (e *Executor) startWorkflow(ctx context.Context, orderID string) {
	e.mu.Lock()
	exec, ok := e.executions[orderID]
	if !ok {
		e.mu.Unlock()
		return
	}
	detail := eventbus.WorkflowStartedDetail{
		OrderID:   exec.orderID,
		UserID:    exec.userID,
		EventID:   exec.eventID,
		TaskToken: exec.taskToken,
		Message:   "workflow started, waiting for the customer's order",
	}
	exec.timer = time.AfterFunc(e.cfg.CustomerTimeout, func() {
		e.fireTimeout(orderID, eventbus.TimeoutCauseCustomer)
	})
	e.mu.Unlock()

	e.lg.Info("workflow started", zap.String("orderId", orderID))
	e.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicWorkflowStarted,
		Source: eventbus.Source,
		Detail: detail,
	})
}

// Resume continues a workflow suspended on the customer. The call must
// present the record's current task token; an unknown order or a stale token
// is a silent no-op, tolerating duplicate or late signals. On success the
// customer deadline is cancelled, an order number is allocated, a fresh task
// token is issued, WaitingCompletion is published, and the barista deadline
// is armed.
func (e *Executor) Resume(ctx context.Context, orderID, taskToken string) {
	e.mu.Lock()
	exec, ok := e.executions[orderID]
	if !ok || exec.status != StatusRunning || exec.taskToken != taskToken {
		e.mu.Unlock()
		e.lg.Debug("resume ignored", zap.String("orderId", orderID))
		return
	}
	exec.timer.Stop()

	orderNumber, err := e.counters.Increment(ctx, counterKey(exec.eventID))
	if err != nil {
		// Leave the record running with its token intact so the customer
		// can retry; the customer deadline is re-armed.
		exec.timer = time.AfterFunc(e.cfg.CustomerTimeout, func() {
			e.fireTimeout(orderID, eventbus.TimeoutCauseCustomer)
		})
		e.mu.Unlock()
		zctx.From(ctx).Error("order number allocation failed",
			zap.String("orderId", orderID), zap.Error(err))
		return
	}

	exec.taskToken = uuid.NewString()
	detail := eventbus.WaitingCompletionDetail{
		OrderID:     exec.orderID,
		UserID:      exec.userID,
		EventID:     exec.eventID,
		TaskToken:   exec.taskToken,
		OrderNumber: orderNumber,
		Message:     "order submitted, waiting for the barista",
	}
	exec.timer = time.AfterFunc(e.cfg.BaristaTimeout, func() {
		e.fireTimeout(orderID, eventbus.TimeoutCauseBarista)
	})
	e.mu.Unlock()

	e.lg.Info("workflow resumed",
		zap.String("orderId", orderID),
		zap.Int64("orderNumber", orderNumber),
	)
	e.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicWaitingCompletion,
		Source: eventbus.Source,
		Detail: detail,
	})
}

// Complete finishes a workflow suspended on the barista. Token rules match
// Resume: unknown order or stale token is a silent no-op. On success the
// barista deadline is cancelled, the record is destroyed, and orderFinished
// is published.
func (e *Executor) Complete(ctx context.Context, orderID, taskToken string) {
	e.mu.Lock()
	exec, ok := e.executions[orderID]
	if !ok || exec.status != StatusRunning || exec.taskToken != taskToken {
		e.mu.Unlock()
		e.lg.Debug("complete ignored", zap.String("orderId", orderID))
		return
	}
	exec.timer.Stop()
	exec.status = StatusCompleted
	delete(e.executions, orderID)
	detail := eventbus.OrderFinishedDetail{
		OrderID: exec.orderID,
		UserID:  exec.userID,
		EventID: exec.eventID,
		Message: "order reached the end of the workflow",
	}
	e.mu.Unlock()

	e.lg.Info("workflow completed", zap.String("orderId", orderID))
	e.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicOrderFinished,
		Source: eventbus.Source,
		Detail: detail,
	})
}

// fireTimeout runs on the timer goroutine. A record that already resumed or
// completed is left alone; the guard makes a late fire a no-op.
func (e *Executor) fireTimeout(orderID, cause string) {
	e.mu.Lock()
	exec, ok := e.executions[orderID]
	if !ok || exec.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	exec.status = StatusTimeout
	delete(e.executions, orderID)
	detail := eventbus.OrderTimeOutDetail{
		OrderID: exec.orderID,
		UserID:  exec.userID,
		EventID: exec.eventID,
		Cause:   cause,
		Message: fmt.Sprintf("order timed out waiting for the %s", cause),
	}
	e.mu.Unlock()

	ctx := zctx.Base(context.Background(), e.lg)
	e.lg.Info("workflow timed out",
		zap.String("orderId", orderID),
		zap.String("cause", cause),
	)
	e.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicOrderTimeOut,
		Source: eventbus.Source,
		Detail: detail,
	})
}

func counterKey(eventID string) string {
	return "orderID-" + eventID
}
