package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/presso/internal/domain/config"
	"github.com/xenking/presso/internal/eventbus"
)

// Workflow is the slice of the workflow executor the manager drives. Both
// calls are no-ops when the order is unknown or the token is stale.
type Workflow interface {
	Resume(ctx context.Context, orderID, taskToken string)
	Complete(ctx context.Context, orderID, taskToken string)
}

// Manager owns the persisted Order entity. It reacts to workflow transitions
// on the bus and exposes the customer and barista actions.
type Manager struct {
	orders   Repository
	config   config.Repository
	workflow Workflow
	bus      *eventbus.Bus
	lg       *zap.Logger
}

// NewManager creates a Manager. Call Register to attach it to the bus.
func NewManager(orders Repository, cfgRepo config.Repository, wf Workflow, bus *eventbus.Bus, lg *zap.Logger) *Manager {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Manager{
		orders:   orders,
		config:   cfgRepo,
		workflow: wf,
		bus:      bus,
		lg:       lg.Named("orders"),
	}
}

// Register subscribes the manager to the executor's lifecycle events.
func (m *Manager) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicWorkflowStarted, m.handleWorkflowStarted)
	bus.Subscribe(eventbus.TopicWaitingCompletion, m.handleWaitingCompletion)
	bus.Subscribe(eventbus.TopicOrderTimeOut, m.handleOrderTimeout)
}

func (m *Manager) handleWorkflowStarted(ctx context.Context, evt eventbus.Event) {
	detail, ok := evt.Detail.(eventbus.WorkflowStartedDetail)
	if !ok {
		return
	}

	o := &Order{
		ID:        detail.OrderID,
		UserID:    detail.UserID,
		EventID:   detail.EventID,
		State:     StateCreated(detail.EventID),
		TaskToken: detail.TaskToken,
		TS:        time.Now(),
	}
	if err := m.orders.Put(ctx, o); err != nil {
		zctx.From(ctx).Error("persist new order failed",
			zap.String("orderId", detail.OrderID), zap.Error(err))
		return
	}
	m.lg.Info("order created", zap.String("orderId", o.ID), zap.String("state", o.State))
}

func (m *Manager) handleWaitingCompletion(ctx context.Context, evt eventbus.Event) {
	detail, ok := evt.Detail.(eventbus.WaitingCompletionDetail)
	if !ok {
		return
	}

	o, err := m.orders.Get(ctx, detail.OrderID)
	if err != nil {
		zctx.From(ctx).Error("load order failed",
			zap.String("orderId", detail.OrderID), zap.Error(err))
		return
	}
	if o.UserID != detail.UserID {
		m.lg.Warn("waiting-completion user mismatch", zap.String("orderId", detail.OrderID))
		return
	}

	o.TaskToken = detail.TaskToken
	o.OrderNumber = detail.OrderNumber
	o.TS = time.Now()
	if err := m.orders.Update(ctx, o); err != nil {
		zctx.From(ctx).Error("persist order number failed",
			zap.String("orderId", detail.OrderID), zap.Error(err))
		return
	}

	// Re-publish for observers, enriched with the stored drink order.
	enriched := eventbus.WaitingCompletionDetail{
		OrderID:     o.ID,
		UserID:      o.UserID,
		EventID:     o.EventID,
		OrderNumber: o.OrderNumber,
		State:       o.State,
		DrinkOrder:  toBusDrinkOrder(o.DrinkOrder),
		Message:     "task token stored on the order",
	}
	m.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicManagerWaitingCompletion,
		Source: eventbus.Source,
		Detail: enriched,
	})
}

func (m *Manager) handleOrderTimeout(ctx context.Context, evt eventbus.Event) {
	detail, ok := evt.Detail.(eventbus.OrderTimeOutDetail)
	if !ok {
		return
	}

	o, err := m.orders.Get(ctx, detail.OrderID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zctx.From(ctx).Error("load order failed",
				zap.String("orderId", detail.OrderID), zap.Error(err))
		}
		return
	}

	o.State = StateTimeout(o.EventID)
	o.TaskToken = ""
	o.TS = time.Now()
	if err := m.orders.Update(ctx, o); err != nil {
		zctx.From(ctx).Error("persist timeout state failed",
			zap.String("orderId", detail.OrderID), zap.Error(err))
	}
}

// Submit records the customer's drink selection and resumes the workflow.
// The drink must be on the event menu and every modifier must be a legal
// option for it; the submitting user must own the order; the order must hold
// an active task token.
func (m *Manager) Submit(ctx context.Context, orderID, userID, eventID string, sel DrinkSelection) error {
	cfg, err := m.config.Get(ctx, eventID)
	if err != nil {
		return errors.Wrap(err, "load event config")
	}
	if err := validateSelection(cfg, sel); err != nil {
		return err
	}

	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return ErrOwnerMismatch
	}
	if o.TaskToken == "" {
		return ErrInvalidState
	}

	sel.UserID = userID
	o.DrinkOrder = &sel
	o.TS = time.Now()
	if err := m.orders.Update(ctx, o); err != nil {
		return errors.Wrap(err, "persist drink order")
	}

	m.lg.Info("order submitted",
		zap.String("orderId", orderID),
		zap.String("drink", sel.Drink),
	)
	m.workflow.Resume(ctx, orderID, o.TaskToken)
	return nil
}

// Claim assigns the order to a barista and announces it.
func (m *Manager) Claim(ctx context.Context, orderID, eventID, baristaUserID string) error {
	return m.setBarista(ctx, orderID, eventID, baristaUserID)
}

// Unclaim releases the order back to the queue.
func (m *Manager) Unclaim(ctx context.Context, orderID, eventID string) error {
	return m.setBarista(ctx, orderID, eventID, "")
}

func (m *Manager) setBarista(ctx context.Context, orderID, eventID, baristaUserID string) error {
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	o.BaristaUserID = baristaUserID
	o.TS = time.Now()
	if err := m.orders.Update(ctx, o); err != nil {
		return errors.Wrap(err, "persist barista claim")
	}

	m.bus.Publish(ctx, eventbus.Event{
		Type:   eventbus.TopicMakeOrder,
		Source: eventbus.Source,
		Detail: eventbus.MakeOrderDetail{
			OrderID:       orderID,
			UserID:        o.UserID,
			EventID:       eventID,
			BaristaUserID: baristaUserID,
			Message:       "barista claim changed",
		},
	})
	return nil
}

// Complete marks the order made, announces it, and finishes the workflow.
func (m *Manager) Complete(ctx context.Context, orderID, eventID string) error {
	return m.finish(ctx, orderID, StateCompleted(eventID), eventbus.TopicOrderCompleted)
}

// Cancel marks the order cancelled, announces it, and finishes the workflow.
// Cancellation runs the same terminal path as completion: the execution
// record is removed either way.
func (m *Manager) Cancel(ctx context.Context, orderID, eventID string) error {
	return m.finish(ctx, orderID, StateCancelled(eventID), eventbus.TopicOrderCancelled)
}

func (m *Manager) finish(ctx context.Context, orderID, state, topic string) error {
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	taskToken := o.TaskToken
	o.State = state
	o.TaskToken = ""
	o.TS = time.Now()
	if err := m.orders.Update(ctx, o); err != nil {
		return errors.Wrap(err, "persist terminal state")
	}

	m.lg.Info("order finished", zap.String("orderId", orderID), zap.String("state", state))
	m.bus.Publish(ctx, eventbus.Event{
		Type:   topic,
		Source: eventbus.Source,
		Detail: eventbus.OrderStateDetail{
			OrderID: orderID,
			UserID:  o.UserID,
			EventID: o.EventID,
			State:   state,
			Message: "barista finished the order",
		},
	})

	if taskToken != "" {
		m.workflow.Complete(ctx, orderID, taskToken)
	}
	return nil
}

// List returns orders in the given composite state, newest first, up to limit.
func (m *Manager) List(ctx context.Context, state, eventID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return m.orders.ListByState(ctx, eventID+"-"+state, limit)
}

// ListMine returns the user's orders.
func (m *Manager) ListMine(ctx context.Context, userID string) ([]Order, error) {
	return m.orders.ListByUser(ctx, userID)
}

// GetByID returns a single order.
func (m *Manager) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return m.orders.Get(ctx, orderID)
}

func validateSelection(cfg *config.EventConfig, sel DrinkSelection) error {
	item, ok := cfg.FindDrink(sel.Drink)
	if !ok {
		return &DrinkSelectionError{Drink: sel.Drink}
	}
	for _, mod := range sel.Modifiers {
		if !item.AllowsModifier(mod) {
			return &DrinkSelectionError{Drink: sel.Drink, Modifier: mod}
		}
	}
	return nil
}

func toBusDrinkOrder(sel *DrinkSelection) *eventbus.DrinkOrder {
	if sel == nil {
		return nil
	}
	return &eventbus.DrinkOrder{
		UserID:    sel.UserID,
		Drink:     sel.Drink,
		Modifiers: sel.Modifiers,
	}
}
