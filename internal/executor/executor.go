// Package executor converts validated order requests into broker submissions
// with idempotent client-assigned identity and bounded retry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Chiqo-ke/AlgoAgent-sub001/internal/events"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/broker"
	"github.com/Chiqo-ke/AlgoAgent-sub001/pkg/db"
)

// Terminal failure kinds. Duplicate and precheck failures never reach the
// broker; max-retries carries the last broker error observed.
var (
	ErrDuplicateOrder     = errors.New("duplicate client order id")
	ErrPrecheckFailed     = errors.New("order precheck failed")
	ErrMaxRetriesExceeded = errors.New("max retry attempts exceeded")
)

// Status of a client order id inside the executor's bookkeeping.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusExecuted  Status = "EXECUTED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// Record tracks one client order id from submission to its terminal state.
type Record struct {
	ClientOrderID string
	Request       broker.OrderRequest
	Status        Status
	Attempts      int
	Result        broker.OrderResult
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Result is the terminal outcome of Execute.
type Result struct {
	Success        bool
	RetCode        broker.RetCode
	Message        string
	BrokerOrderID  string
	DealID         string
	ExecutedPrice  float64
	ExecutedVolume float64
	Attempts       int
}

// Summary aggregates executor activity for observability.
type Summary struct {
	Total       int     `json:"total"`
	Executed    int     `json:"executed"`
	Failed      int     `json:"failed"`
	Cancelled   int     `json:"cancelled"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// Config bounds the retry loop.
type Config struct {
	MaxRetryAttempts int
	BackoffBase      float64 // seconds; sleep = base^attempt
	OrderTimeout     time.Duration
}

// Executor owns the per-order state machine PENDING -> {EXECUTED, FAILED,
// CANCELLED}. A given client order id transitions out of PENDING at most once
// and is never resubmitted.
type Executor struct {
	gw    broker.Gateway
	store *db.Store
	bus   *events.Bus
	cfg   Config

	mu      sync.RWMutex
	records map[string]*Record
}

func New(gw broker.Gateway, store *db.Store, bus *events.Bus, cfg Config) *Executor {
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 30 * time.Second
	}
	return &Executor{
		gw:      gw,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		records: make(map[string]*Record),
	}
}

// GenerateClientOrderID builds the idempotency key: deterministic prefix from
// symbol and signal id, then wall clock and a short random disambiguator.
func GenerateClientOrderID(symbol, signalID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", symbol, signalID, time.Now().Unix(), suffix)
}

// IsDuplicate reports whether the id is pending or terminal, in memory or in
// the durable audit trail. The store lookup is what survives restarts.
func (e *Executor) IsDuplicate(ctx context.Context, clientOrderID string) bool {
	e.mu.RLock()
	_, ok := e.records[clientOrderID]
	e.mu.RUnlock()
	if ok {
		return true
	}
	if e.store != nil {
		seen, err := e.store.HasOrder(ctx, clientOrderID)
		if err != nil {
			log.Printf("executor: durable duplicate check failed for %s: %v", clientOrderID, err)
			return false
		}
		return seen
	}
	return false
}

// Execute runs one order request to a terminal outcome, exactly once per
// client order id. Duplicates fail before any broker call.
func (e *Executor) Execute(ctx context.Context, req broker.OrderRequest, clientOrderID string) (Result, error) {
	if e.IsDuplicate(ctx, clientOrderID) {
		log.Printf("executor: duplicate order %s, not submitting", clientOrderID)
		return Result{Message: "duplicate client order id"}, fmt.Errorf("%w: %s", ErrDuplicateOrder, clientOrderID)
	}

	req.ClientID = clientOrderID
	rec := &Record{
		ClientOrderID: clientOrderID,
		Request:       req,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	e.mu.Lock()
	e.records[clientOrderID] = rec
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.InsertOrder(ctx, db.OrderRecord{
			ClientOrderID: clientOrderID,
			Symbol:        req.Symbol,
			Side:          string(req.Side),
			OrderType:     string(req.Type),
			Volume:        req.Volume,
			Price:         req.Price,
			StopLoss:      req.StopLoss,
			Status:        string(StatusPending),
			Comment:       req.Comment,
		}); err != nil {
			log.Printf("executor: store order %s error: %v", clientOrderID, err)
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.EventOrderSubmitted, *rec)
	}

	res, err := e.executeWithRetry(ctx, rec)

	status := StatusFailed
	if res.Success {
		status = StatusExecuted
	}
	e.finalize(ctx, rec, status, res)
	return res, err
}

// executeWithRetry loops up to MaxRetryAttempts: precheck, CheckOrder,
// SendOrder, then classifies the return code. Transport errors count as
// retryable. Sleeps between attempts observe ctx so shutdown is prompt.
func (e *Executor) executeWithRetry(ctx context.Context, rec *Record) (Result, error) {
	req := rec.Request

	if err := e.precheck(ctx, req); err != nil {
		e.setAttempts(rec, 1)
		return Result{
			RetCode:  broker.RetInvalidRequest,
			Message:  err.Error(),
			Attempts: 1,
		}, fmt.Errorf("%w: %v", ErrPrecheckFailed, err)
	}

	var last broker.OrderResult
	for attempt := 1; attempt <= e.cfg.MaxRetryAttempts; attempt++ {
		e.setAttempts(rec, attempt)

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
		res, err := e.gw.SendOrder(callCtx, req)
		cancel()

		if err != nil {
			// Transport failure: retryable, mapped onto the same taxonomy.
			log.Printf("executor: send %s attempt %d/%d transport error: %v",
				rec.ClientOrderID, attempt, e.cfg.MaxRetryAttempts, err)
			last = broker.OrderResult{RetCode: broker.RetNoConnection, Message: err.Error()}
		} else {
			last = res
			if res.Success() {
				return Result{
					Success:        true,
					RetCode:        res.RetCode,
					Message:        res.Message,
					BrokerOrderID:  res.BrokerOrderID,
					DealID:         res.DealID,
					ExecutedPrice:  res.ExecutedPrice,
					ExecutedVolume: res.ExecutedVolume,
					Attempts:       attempt,
				}, nil
			}
			if !res.RetCode.Retryable() {
				log.Printf("executor: %s terminal broker failure %s: %s", rec.ClientOrderID, res.RetCode, res.Message)
				return Result{
					RetCode:  res.RetCode,
					Message:  res.Message,
					Attempts: attempt,
				}, nil
			}
			log.Printf("executor: %s retryable %s (attempt %d/%d): %s",
				rec.ClientOrderID, res.RetCode, attempt, e.cfg.MaxRetryAttempts, res.Message)
		}

		if attempt < e.cfg.MaxRetryAttempts {
			backoff := time.Duration(math.Pow(e.cfg.BackoffBase, float64(attempt)) * float64(time.Second))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{
					RetCode:  last.RetCode,
					Message:  "cancelled during retry backoff",
					Attempts: attempt,
				}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return Result{
		RetCode:  last.RetCode,
		Message:  last.Message,
		Attempts: e.cfg.MaxRetryAttempts,
	}, fmt.Errorf("%w after %d attempts: %s %s", ErrMaxRetriesExceeded, e.cfg.MaxRetryAttempts, last.RetCode, last.Message)
}

func (e *Executor) setAttempts(rec *Record, n int) {
	e.mu.Lock()
	rec.Attempts = n
	rec.UpdatedAt = time.Now()
	e.mu.Unlock()
}

// precheck validates required fields, then asks the broker to vet margin and
// side. A precheck failure is terminal for the order; no retry budget spent.
func (e *Executor) precheck(ctx context.Context, req broker.OrderRequest) error {
	if req.Symbol == "" {
		return errors.New("symbol is required")
	}
	if req.Volume <= 0 {
		return fmt.Errorf("volume must be positive, got %v", req.Volume)
	}
	if req.Type == broker.OrderTypeLimit && req.Price <= 0 {
		return fmt.Errorf("limit price must be positive, got %v", req.Price)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()
	check, err := e.gw.CheckOrder(callCtx, req)
	if err != nil {
		return fmt.Errorf("broker order check: %w", err)
	}
	if !check.OK {
		return fmt.Errorf("broker rejected order check: %s %s", check.RetCode, check.Message)
	}
	return nil
}

// finalize moves the record out of PENDING and writes the execution result to
// the audit trail.
func (e *Executor) finalize(ctx context.Context, rec *Record, status Status, res Result) {
	e.mu.Lock()
	if rec.Status == StatusPending {
		rec.Status = status
	}
	rec.Result = broker.OrderResult{
		RetCode:        res.RetCode,
		Message:        res.Message,
		BrokerOrderID:  res.BrokerOrderID,
		DealID:         res.DealID,
		ExecutedPrice:  res.ExecutedPrice,
		ExecutedVolume: res.ExecutedVolume,
	}
	rec.UpdatedAt = time.Now()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.UpdateOrderResult(ctx, rec.ClientOrderID, db.OrderResultUpdate{
			Status:         string(status),
			Attempts:       res.Attempts,
			RetCode:        string(res.RetCode),
			RetMessage:     res.Message,
			BrokerOrderID:  res.BrokerOrderID,
			DealID:         res.DealID,
			ExecutedPrice:  res.ExecutedPrice,
			ExecutedVolume: res.ExecutedVolume,
		}); err != nil {
			log.Printf("executor: update order %s result error: %v", rec.ClientOrderID, err)
		}
	}
	if e.bus != nil {
		if status == StatusExecuted {
			e.bus.Publish(events.EventOrderExecuted, *rec)
		} else {
			e.bus.Publish(events.EventOrderFailed, *rec)
		}
	}
}

// CancelPending removes a still-pending record and marks it CANCELLED.
// Returns false when the id is unknown or already terminal.
func (e *Executor) CancelPending(ctx context.Context, clientOrderID string) bool {
	e.mu.Lock()
	rec, ok := e.records[clientOrderID]
	if !ok || rec.Status != StatusPending {
		e.mu.Unlock()
		return false
	}
	rec.Status = StatusCancelled
	rec.UpdatedAt = time.Now()
	attempts := rec.Attempts
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.UpdateOrderResult(ctx, clientOrderID, db.OrderResultUpdate{
			Status:   string(StatusCancelled),
			Attempts: attempts,
		}); err != nil {
			log.Printf("executor: cancel order %s error: %v", clientOrderID, err)
		}
	}
	return true
}

// GetStatus returns the current status and record for a client order id.
func (e *Executor) GetStatus(clientOrderID string) (Status, Record) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if rec, ok := e.records[clientOrderID]; ok {
		return rec.Status, *rec
	}
	return StatusUnknown, Record{}
}

// GetExecutionSummary returns aggregate counts and success rate.
func (e *Executor) GetExecutionSummary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var s Summary
	for _, rec := range e.records {
		s.Total++
		switch rec.Status {
		case StatusExecuted:
			s.Executed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		case StatusPending:
			s.Pending++
		}
	}
	if done := s.Executed + s.Failed; done > 0 {
		s.SuccessRate = float64(s.Executed) / float64(done)
	}
	return s
}
