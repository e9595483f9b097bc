package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/strategy"
)

// maybeOpen opens a position for the strategy on the given side if no record
// blocks it. Under hedge mode a strategy may hold one position per side; in
// one-way mode one position total.
func (s *TradingService) maybeOpen(ctx context.Context, strat strategy.Strategy, side domain.PositionSide) error {
	key := domain.PositionKey{StrategyID: strat.ID(), Side: side}
	if _, exists := s.positions[key]; exists {
		return nil
	}
	if !s.cfg.HedgeMode {
		opposite := domain.PositionKey{StrategyID: strat.ID(), Side: side.Opposite()}
		if _, exists := s.positions[opposite]; exists {
			s.logger.Debug(ctx, "Skipping entry: opposite side held in one-way mode", map[string]interface{}{
				"strategy": strat.ID(),
				"side":     side,
			})
			return nil
		}
	}

	err := s.openPosition(ctx, strat, side)
	if err != nil && errors.Is(err, ports.ErrRetryExhausted) {
		// Order actions that exhaust the retry budget stop the bot; the
		// exchange state is unknowable from here.
		return fmt.Errorf("opening %s for strategy %d: %w", side, strat.ID(), err)
	}
	if err != nil {
		s.logger.Error(ctx, err, "Entry failed, skipping signal", map[string]interface{}{
			"strategy": strat.ID(),
			"side":     side,
		})
	}
	return nil
}

// openPosition drives FLAT -> OPENING -> OPEN: sizes the position, places the
// entry market order, then the TP and SL brackets sized to the record's own
// quantity so concurrent strategies on one side never flatten each other. A
// bracket failure triggers compensating cancellation and an emergency close so
// an unprotected position is never left standing.
func (s *TradingService) openPosition(ctx context.Context, strat strategy.Strategy, side domain.PositionSide) error {
	op := "openPosition"
	key := domain.PositionKey{StrategyID: strat.ID(), Side: side}

	qty, err := s.sizer.PositionQuantity(s.balance.Total, s.lastPrice)
	if err != nil {
		return fmt.Errorf("sizing position: %w", err)
	}
	qtyStr := s.sizer.FormatQuantity(qty)

	s.logger.Info(ctx, op+": opening position", map[string]interface{}{
		"strategy": strat.ID(),
		"name":     strat.Name(),
		"side":     side,
		"quantity": qtyStr,
		"price":    s.lastPrice,
	})

	var entryOrder *ports.OrderResponse
	err = s.retry(ctx, "PlaceMarketOrder", func(c context.Context) error {
		var err error
		entryOrder, err = s.exchange.PlaceMarketOrder(c, s.cfg.Symbol, side.EntryOrderSide(), side, qtyStr)
		return err
	})
	if err != nil {
		return fmt.Errorf("entry market order failed: %w", err)
	}

	entryPrice := entryOrder.AvgPrice
	if entryPrice == 0 {
		s.logger.Warn(ctx, op+": entry AvgPrice is 0, falling back to last price", map[string]interface{}{
			"orderID":       entryOrder.OrderID,
			"fallbackPrice": s.lastPrice,
		})
		entryPrice = s.lastPrice
	}

	rec := &domain.PositionRecord{
		StrategyID:   strat.ID(),
		Symbol:       s.cfg.Symbol,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   entryPrice,
		EntryTime:    time.Now().UTC(),
		Leverage:     s.cfg.Leverage,
		EntryOrderID: entryOrder.OrderID,
		Status:       domain.StatusOpening,
	}
	s.positions[key] = rec

	targets := strat.Targets()
	tpPrice, slPrice := s.sizer.BracketPrices(side, entryPrice, targets.TakeProfitPct, targets.StopLossPct)
	rec.TakeProfit = tpPrice
	rec.StopLoss = slPrice
	closeSide := side.CloseOrderSide()

	var tpOrder *ports.OrderResponse
	err = s.retry(ctx, "PlaceTakeProfitMarketOrder", func(c context.Context) error {
		var err error
		tpOrder, err = s.exchange.PlaceTakeProfitMarketOrder(c, s.cfg.Symbol, closeSide, side, qtyStr, s.sizer.FormatPrice(tpPrice))
		return err
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": TP placement failed, compensating", map[string]interface{}{"strategy": strat.ID(), "side": side})
		s.compensateEntry(ctx, key, qtyStr, 0)
		return fmt.Errorf("take profit order failed after entry: %w", err)
	}
	rec.TPOrderID = tpOrder.OrderID

	var slOrder *ports.OrderResponse
	err = s.retry(ctx, "PlaceStopMarketOrder", func(c context.Context) error {
		var err error
		slOrder, err = s.exchange.PlaceStopMarketOrder(c, s.cfg.Symbol, closeSide, side, qtyStr, s.sizer.FormatPrice(slPrice))
		return err
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": SL placement failed, compensating", map[string]interface{}{"strategy": strat.ID(), "side": side})
		s.compensateEntry(ctx, key, qtyStr, tpOrder.OrderID)
		return fmt.Errorf("stop loss order failed after entry: %w", err)
	}
	rec.SLOrderID = slOrder.OrderID

	rec.Status = domain.StatusOpen
	s.logger.Info(ctx, op+": position open", map[string]interface{}{
		"strategy":   strat.ID(),
		"side":       side,
		"entryPrice": entryPrice,
		"quantity":   qtyStr,
		"takeProfit": tpPrice,
		"stopLoss":   slPrice,
		"entryOrder": entryOrder.OrderID,
		"tpOrder":    tpOrder.OrderID,
		"slOrder":    slOrder.OrderID,
	})
	return nil
}

// compensateEntry unwinds a partially opened position: cancels any bracket
// already placed, market-closes the entry exposure, and drops the record.
func (s *TradingService) compensateEntry(ctx context.Context, key domain.PositionKey, qtyStr string, placedBracketID int64) {
	op := "compensateEntry"
	if placedBracketID != 0 {
		s.cancelOrderWarn(ctx, placedBracketID, "bracket")
	}

	err := s.retry(ctx, "EmergencyClose", func(c context.Context) error {
		_, err := s.exchange.PlaceMarketOrder(c, s.cfg.Symbol, key.Side.CloseOrderSide(), key.Side, qtyStr)
		return err
	})
	if err != nil {
		// Exposure may remain on the exchange; reconciliation will pick it up
		// and the operator sees the error either way.
		s.logger.Error(ctx, err, op+": EMERGENCY CLOSE FAILED", map[string]interface{}{
			"strategy": key.StrategyID,
			"side":     key.Side,
			"quantity": qtyStr,
		})
	} else {
		s.logger.Warn(ctx, op+": entry unwound with emergency close", map[string]interface{}{
			"strategy": key.StrategyID,
			"side":     key.Side,
		})
	}
	delete(s.positions, key)
}

// qtyEpsilon absorbs float noise when comparing exchange sizes against the
// sum of record quantities.
const qtyEpsilon = 1e-9

// reconcile compares every local record against the exchange's reported
// positions. The exchange wins: records the exchange no longer backs are
// force-flattened, their brackets canceled, and the trade archived. Exposure
// the records cannot account for (a crash between fill and persist) holds the
// entry gate down until an operator resolves it; a clean pass lifts the gate.
func (s *TradingService) reconcile(ctx context.Context) error {
	var risks []*ports.PositionRisk
	err := s.retry(ctx, "GetPositionRisk", func(c context.Context) error {
		var err error
		risks, err = s.exchange.GetPositionRisk(c, s.cfg.Symbol)
		return err
	})
	if err != nil {
		return err
	}

	sizeBySide := map[domain.PositionSide]float64{}
	for _, r := range risks {
		sizeBySide[r.PositionSide] += r.PositionAmt
	}

	var openIDs map[int64]bool
	for key, rec := range s.positions {
		if sizeBySide[rec.Side] > 0 {
			// Exchange still shows exposure on this side. A record stuck in
			// OPENING from a crashed run is promoted; its brackets, if any,
			// remain attached.
			if rec.Status != domain.StatusOpen {
				s.logger.Warn(ctx, "Reconciliation promoted ambiguous record to open", map[string]interface{}{
					"strategy": key.StrategyID,
					"side":     rec.Side,
					"status":   rec.Status,
				})
				rec.Status = domain.StatusOpen
			}
			continue
		}

		// The exchange reports no exposure on this side: the position was
		// closed out from under us (bracket fill, manual close, liquidation).
		if openIDs == nil {
			openIDs, err = s.openOrderIDSet(ctx)
			if err != nil {
				return err
			}
		}
		if err := s.forceFlat(ctx, key, rec, openIDs); err != nil {
			return err
		}
	}

	// Exposure the surviving records cannot account for means an entry filled
	// that we never recorded. Trading on top of it would double the risk, and
	// its brackets must not be reaped as orphans.
	trackedBySide := map[domain.PositionSide]float64{}
	for _, rec := range s.positions {
		trackedBySide[rec.Side] += rec.Quantity
	}
	clean := true
	for side, size := range sizeBySide {
		if size > trackedBySide[side]+qtyEpsilon {
			clean = false
			s.logger.Error(ctx, ports.ErrReconciliationMismatch, "Untracked exchange exposure, holding entries", map[string]interface{}{
				"side":         side,
				"exchangeSize": size,
				"trackedSize":  trackedBySide[side],
			})
		}
	}
	if !clean {
		s.reconciled = false
		return nil
	}

	if !s.reconciled {
		s.reconciled = true
		s.logger.Info(ctx, "Reconciliation passed clean, entries enabled")
	}
	return nil
}

// forceFlat completes OPEN -> CLOSING -> FLAT for a record the exchange no
// longer backs: cancels leftover brackets, infers the close reason from which
// bracket is gone, archives the trade, and drops the record.
func (s *TradingService) forceFlat(ctx context.Context, key domain.PositionKey, rec *domain.PositionRecord, openIDs map[int64]bool) error {
	rec.Status = domain.StatusClosing

	reason, exitPrice := s.inferClose(rec, openIDs)
	if reason == domain.CloseReasonExternal || reason == domain.CloseReasonEmergency {
		// No bracket fixed the exit price and the cached mark is only as
		// fresh as the last candle boundary. Re-fetch before archiving.
		var price float64
		err := s.retry(ctx, "GetLastPrice", func(c context.Context) error {
			var err error
			price, err = s.exchange.GetLastPrice(c, s.cfg.Symbol)
			return err
		})
		if err != nil {
			s.logger.Warn(ctx, "Mark refresh failed, archiving at cached price", map[string]interface{}{"error": err.Error()})
		} else {
			s.lastPrice = price
			exitPrice = price
		}
	}
	if rec.TPOrderID != 0 && openIDs[rec.TPOrderID] {
		s.cancelOrderWarn(ctx, rec.TPOrderID, "TP")
	}
	if rec.SLOrderID != 0 && openIDs[rec.SLOrderID] {
		s.cancelOrderWarn(ctx, rec.SLOrderID, "SL")
	}

	trade := &domain.Trade{
		Symbol:      rec.Symbol,
		StrategyID:  rec.StrategyID,
		Side:        rec.Side,
		EntryPrice:  rec.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    rec.Quantity,
		Leverage:    rec.Leverage,
		PNL:         rec.PNL(exitPrice),
		EntryTime:   rec.EntryTime,
		ExitTime:    time.Now().UTC(),
		CloseReason: reason,
	}
	if _, err := s.tradeRepo.CreateTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, "Failed to archive closed trade", map[string]interface{}{
			"strategy": key.StrategyID,
			"side":     key.Side,
		})
	}

	delete(s.positions, key)
	s.logger.Info(ctx, "Position reconciled flat", map[string]interface{}{
		"strategy":  key.StrategyID,
		"side":      key.Side,
		"reason":    reason,
		"exitPrice": exitPrice,
		"pnl":       trade.PNL,
	})
	return nil
}

// inferClose guesses why a position disappeared: a filled bracket is no longer
// among the open orders. Both brackets gone (or never placed) means the close
// happened outside the bot.
func (s *TradingService) inferClose(rec *domain.PositionRecord, openIDs map[int64]bool) (domain.CloseReason, float64) {
	tpOpen := rec.TPOrderID != 0 && openIDs[rec.TPOrderID]
	slOpen := rec.SLOrderID != 0 && openIDs[rec.SLOrderID]

	switch {
	case rec.TPOrderID != 0 && !tpOpen && slOpen:
		return domain.CloseReasonTakeProfit, rec.TakeProfit
	case rec.SLOrderID != 0 && !slOpen && tpOpen:
		return domain.CloseReasonStopLoss, rec.StopLoss
	case rec.TPOrderID == 0 && rec.SLOrderID == 0:
		return domain.CloseReasonEmergency, s.lastPrice
	default:
		return domain.CloseReasonExternal, s.lastPrice
	}
}

// cleanupOrphanOrders cancels open orders no position record owns: leftovers
// from crashed runs or from brackets whose twin already filled. It runs only
// after a clean reconcile; until then an unowned order may be the live bracket
// of exposure the records have not accounted for.
func (s *TradingService) cleanupOrphanOrders(ctx context.Context) error {
	if !s.reconciled {
		s.logger.Debug(ctx, "Skipping orphan cleanup until reconciliation passes clean")
		return nil
	}

	openIDs, err := s.openOrderIDSet(ctx)
	if err != nil {
		return err
	}

	owned := map[int64]bool{}
	for _, rec := range s.positions {
		owned[rec.TPOrderID] = true
		owned[rec.SLOrderID] = true
	}

	for id := range openIDs {
		if owned[id] {
			continue
		}
		s.logger.Warn(ctx, "Canceling orphan order", map[string]interface{}{"orderID": id})
		s.cancelOrderWarn(ctx, id, "orphan")
	}
	return nil
}

// openOrderIDSet fetches the exchange's open order IDs as a lookup set.
func (s *TradingService) openOrderIDSet(ctx context.Context) (map[int64]bool, error) {
	var ids []int64
	err := s.retry(ctx, "GetOpenOrders", func(c context.Context) error {
		var err error
		ids, err = s.exchange.GetOpenOrders(c, s.cfg.Symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// cancelOrderWarn attempts to cancel an order and logs instead of failing.
// An already-gone order is not an error here.
func (s *TradingService) cancelOrderWarn(ctx context.Context, orderID int64, orderType string) {
	err := s.retry(ctx, "CancelOrder", func(c context.Context) error {
		_, err := s.exchange.CancelOrder(c, s.cfg.Symbol, orderID)
		return err
	})
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			s.logger.Debug(ctx, "Order already gone, nothing to cancel", map[string]interface{}{"orderID": orderID, "type": orderType})
			return
		}
		s.logger.Error(ctx, err, "Failed to cancel order", map[string]interface{}{"orderID": orderID, "type": orderType})
	}
}
