// Package db is the append-only audit store: signals, orders, trades, events
// and account snapshots, sufficient to reconcile against broker statements.
package db

import (
	"context"
	"fmt"
	"time"
)

// InsertSignal appends a detected signal.
func (s *Store) InsertSignal(ctx context.Context, rec SignalRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO signals (signal_id, symbol, direction, price, confidence, strategy_id, signal_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, rec.SignalID, rec.Symbol, rec.Direction, rec.Price, rec.Confidence, rec.StrategyID, rec.SignalTime, nullTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// HasSignal reports whether a signal id is already in the audit trail.
// Backing the de-dup set with the store keeps exactly-once across restarts.
func (s *Store) HasSignal(ctx context.Context, signalID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM signals WHERE signal_id = ?`, signalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query signal: %w", err)
	}
	return n > 0, nil
}

// InsertOrder appends an order row at submission time.
func (s *Store) InsertOrder(ctx context.Context, rec OrderRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO orders (
			client_order_id, symbol, side, order_type, volume, price, stop_loss,
			status, attempts, comment, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, rec.ClientOrderID, rec.Symbol, rec.Side, rec.OrderType, rec.Volume, rec.Price, rec.StopLoss,
		rec.Status, rec.Attempts, rec.Comment)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderResult appends execution-result fields to the same logical order
// row. This is the one permitted update path in the store.
func (s *Store) UpdateOrderResult(ctx context.Context, clientOrderID string, upd OrderResultUpdate) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, attempts = ?, ret_code = ?, ret_message = ?,
		    broker_order_id = ?, deal_id = ?, executed_price = ?, executed_volume = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE client_order_id = ?
	`, upd.Status, upd.Attempts, upd.RetCode, upd.RetMessage,
		upd.BrokerOrderID, upd.DealID, upd.ExecutedPrice, upd.ExecutedVolume, clientOrderID)
	if err != nil {
		return fmt.Errorf("update order result: %w", err)
	}
	return nil
}

// HasOrder reports whether a client order id was ever submitted.
func (s *Store) HasOrder(ctx context.Context, clientOrderID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders WHERE client_order_id = ?`, clientOrderID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query order: %w", err)
	}
	return n > 0, nil
}

// InsertTrade appends a closed trade.
func (s *Store) InsertTrade(ctx context.Context, rec TradeRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trades (client_order_id, symbol, side, volume, entry_price, exit_price, profit, opened_at, closed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, rec.ClientOrderID, rec.Symbol, rec.Side, rec.Volume, rec.EntryPrice, rec.ExitPrice, rec.Profit,
		nullTime(rec.OpenedAt), nullTime(rec.ClosedAt))
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// InsertEvent appends a severity-tagged audit event.
func (s *Store) InsertEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO events (category, severity, message, detail, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, rec.Category, rec.Severity, rec.Message, rec.Detail)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertSnapshot appends an account snapshot.
func (s *Store) InsertSnapshot(ctx context.Context, rec SnapshotRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO account_snapshots (taken_at, balance, equity, margin, free_margin, open_positions)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(taken_at) DO UPDATE SET
			balance = excluded.balance,
			equity = excluded.equity,
			margin = excluded.margin,
			free_margin = excluded.free_margin,
			open_positions = excluded.open_positions
	`, rec.TakenAt, rec.Balance, rec.Equity, rec.Margin, rec.FreeMargin, rec.OpenPositions)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// RecentSignals returns the latest signals, newest first.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT signal_id, symbol, direction, price, confidence, COALESCE(strategy_id, ''), signal_time, created_at
		FROM signals ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var res []SignalRecord
	for rows.Next() {
		var r SignalRecord
		if err := rows.Scan(&r.SignalID, &r.Symbol, &r.Direction, &r.Price, &r.Confidence, &r.StrategyID, &r.SignalTime, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// RecentOrders returns the latest orders, newest first.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT client_order_id, symbol, side, order_type, volume, price, stop_loss,
		       status, attempts, COALESCE(ret_code, ''), COALESCE(ret_message, ''),
		       COALESCE(broker_order_id, ''), COALESCE(deal_id, ''),
		       executed_price, executed_volume, COALESCE(comment, ''), created_at, updated_at
		FROM orders ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var res []OrderRecord
	for rows.Next() {
		var r OrderRecord
		if err := rows.Scan(&r.ClientOrderID, &r.Symbol, &r.Side, &r.OrderType, &r.Volume, &r.Price, &r.StopLoss,
			&r.Status, &r.Attempts, &r.RetCode, &r.RetMessage,
			&r.BrokerOrderID, &r.DealID, &r.ExecutedPrice, &r.ExecutedVolume, &r.Comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// GetOrder fetches a single order row by client order id.
func (s *Store) GetOrder(ctx context.Context, clientOrderID string) (OrderRecord, error) {
	var r OrderRecord
	err := s.DB.QueryRowContext(ctx, `
		SELECT client_order_id, symbol, side, order_type, volume, price, stop_loss,
		       status, attempts, COALESCE(ret_code, ''), COALESCE(ret_message, ''),
		       COALESCE(broker_order_id, ''), COALESCE(deal_id, ''),
		       executed_price, executed_volume, COALESCE(comment, ''), created_at, updated_at
		FROM orders WHERE client_order_id = ?
	`, clientOrderID).Scan(&r.ClientOrderID, &r.Symbol, &r.Side, &r.OrderType, &r.Volume, &r.Price, &r.StopLoss,
		&r.Status, &r.Attempts, &r.RetCode, &r.RetMessage,
		&r.BrokerOrderID, &r.DealID, &r.ExecutedPrice, &r.ExecutedVolume, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("get order: %w", err)
	}
	return r, nil
}

// RecentEvents returns the latest audit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, category, severity, message, COALESCE(detail, ''), created_at
		FROM events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var res []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.ID, &r.Category, &r.Severity, &r.Message, &r.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// GetTradeSummary aggregates closed trades over the last `days` days.
func (s *Store) GetTradeSummary(ctx context.Context, days int) (TradeSummary, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	sum := TradeSummary{Days: days}
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(1),
		       COALESCE(SUM(profit), 0),
		       COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0)
		FROM trades WHERE created_at >= ?
	`, cutoff).Scan(&sum.TradeCount, &sum.TotalProfit, &sum.WinCount)
	if err != nil {
		return TradeSummary{}, fmt.Errorf("trade summary: %w", err)
	}
	if sum.TradeCount > 0 {
		sum.AvgProfit = sum.TotalProfit / float64(sum.TradeCount)
		sum.WinRate = float64(sum.WinCount) / float64(sum.TradeCount)
	}
	return sum, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
