// Package binanceclient implements ports.ExchangeClient against the Binance
// USDT-M futures REST API.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Binance returns -4059 when the account is already in the requested
	// position mode. Not an error for us.
	codeNoNeedToChangePositionSide = -4059
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	hedgeMode     bool
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	HedgeMode  bool
	Logger     ports.Logger
}

// New creates a new Binance futures client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global futures.UseTestnet.
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		hedgeMode:     cfg.HedgeMode,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP, or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -2019, -3005, -3041, -4047: // Margin / balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -4003, -4014, -4015: // Qty/price/leverage not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// positionSide maps a domain position side to the wire value. In one-way mode
// the exchange only accepts BOTH.
func (c *Client) positionSide(side domain.PositionSide) futures.PositionSideType {
	if !c.hedgeMode {
		return futures.PositionSideTypeBoth
	}
	if side == domain.Short {
		return futures.PositionSideTypeShort
	}
	return futures.PositionSideTypeLong
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// GetKlines retrieves the most recent candles for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := time.Now()
	candles := make([]*domain.Candle, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		candle, err := translateKline(bk, symbol, interval, now)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetLastPrice retrieves the last traded price for a given symbol.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetLastPrice"
	tickers, err := c.futuresClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetAccountBalance retrieves the balance view for a specific asset (e.g., "USDT").
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (ports.AccountBalance, error) {
	op := "GetAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return ports.AccountBalance{}, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Assets {
		if bal.Asset != asset {
			continue
		}
		total, err := strconv.ParseFloat(bal.WalletBalance, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse wallet balance '%s' for asset %s: %w", bal.WalletBalance, asset, err)
			return ports.AccountBalance{}, c.handleError(ctx, parseErr, op)
		}
		available, err := strconv.ParseFloat(bal.AvailableBalance, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse available balance '%s' for asset %s: %w", bal.AvailableBalance, asset, err)
			return ports.AccountBalance{}, c.handleError(ctx, parseErr, op)
		}
		unrealized, _ := strconv.ParseFloat(bal.UnrealizedProfit, 64)
		return ports.AccountBalance{
			Asset:         asset,
			Available:     available,
			Total:         total,
			UnrealizedPnL: unrealized,
		}, nil
	}

	err = fmt.Errorf("asset %s not found in account balance", asset)
	return ports.AccountBalance{}, c.handleError(ctx, err, op)
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// SetPositionMode switches the account between hedge (dual-side) and one-way
// position mode. Requesting the mode the account is already in succeeds.
func (c *Client) SetPositionMode(ctx context.Context, hedge bool) error {
	op := "SetPositionMode"
	err := c.futuresClient.NewChangePositionModeService().DualSide(hedge).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoNeedToChangePositionSide {
			c.logger.Debug(ctx, op+": position mode already set", map[string]interface{}{"hedge": hedge})
			c.hedgeMode = hedge
			return nil
		}
		return c.handleError(ctx, err, op)
	}
	c.hedgeMode = hedge
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"hedge": hedge})
	return nil
}

// PlaceMarketOrder places a market order on the given position side.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		PositionSide(c.positionSide(posSide)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "positionSide": posSide,
		"quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice,
	})
	return resp, nil
}

// PlaceStopMarketOrder places a reduce-only stop-market order for the given
// quantity on the given position side. The quantity matters: the account holds
// one aggregate position per side, and a bracket must only unwind the slice
// its owning record opened, never the whole side.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	op := "PlaceStopMarketOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		PositionSide(c.positionSide(posSide)).
		Type(futures.OrderTypeStopMarket).
		Quantity(quantity).
		StopPrice(stopPrice)
	// Binance rejects the reduceOnly flag under hedge mode; an opposite-side
	// order against a position side is implicitly reduce-only there.
	if !c.hedgeMode {
		svc = svc.ReduceOnly(true)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "positionSide": posSide,
		"quantity": quantity, "stopPrice": stopPrice, "orderID": resp.OrderID,
	})
	return resp, nil
}

// PlaceTakeProfitMarketOrder places a reduce-only take-profit-market order for
// the given quantity on the given position side.
func (c *Client) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	op := "PlaceTakeProfitMarketOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		PositionSide(c.positionSide(posSide)).
		Type(futures.OrderTypeTakeProfitMarket).
		Quantity(quantity).
		StopPrice(stopPrice)
	if !c.hedgeMode {
		svc = svc.ReduceOnly(true)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "positionSide": posSide,
		"quantity": quantity, "stopPrice": stopPrice, "orderID": resp.OrderID,
	})
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	// CancelOrderResponse is not a CreateOrderResponse; copy what translates.
	createOrderResp := &futures.CreateOrderResponse{
		OrderID:       res.OrderID,
		Symbol:        res.Symbol,
		ClientOrderID: res.ClientOrderID,
		Price:         res.Price,
		OrigQuantity:  res.OrigQuantity,
		Status:        res.Status,
		Type:          res.Type,
		Side:          res.Side,
		PositionSide:  res.PositionSide,
	}

	resp := translateOrderResponse(createOrderResp)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": resp.Status})
	return resp, nil
}

// GetOpenOrders lists the IDs of all currently open orders for the symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]int64, error) {
	op := "GetOpenOrders"
	orders, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	return ids, nil
}

// GetPositionRisk retrieves the exchange-reported positions for the symbol.
// Sides with zero size are omitted; an empty slice means flat.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) ([]*ports.PositionRisk, error) {
	op := "GetPositionRisk"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	risks := make([]*ports.PositionRisk, 0, len(positions))
	for _, pos := range positions {
		risk, err := translatePositionRisk(pos)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if risk == nil {
			continue // zero-size side
		}
		risks = append(risks, risk)
	}
	return risks, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		PositionSide:  string(order.PositionSide),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

// translatePositionRisk converts one exchange position entry. Returns nil for
// zero-size sides. In one-way mode the sign of PositionAmt carries direction.
func translatePositionRisk(pos *futures.PositionRisk) (*ports.PositionRisk, error) {
	if pos == nil {
		return nil, errors.New("received nil position risk entry")
	}
	posAmt, err := strconv.ParseFloat(pos.PositionAmt, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing position amount '%s': %w", pos.PositionAmt, err)
	}
	if posAmt == 0 {
		return nil, nil
	}

	side := domain.Long
	switch pos.PositionSide {
	case "SHORT":
		side = domain.Short
	case "LONG":
		side = domain.Long
	default: // BOTH: direction comes from the sign
		if posAmt < 0 {
			side = domain.Short
		}
	}
	if posAmt < 0 {
		posAmt = -posAmt
	}

	entryPrice, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	markPrice, _ := strconv.ParseFloat(pos.MarkPrice, 64)
	unProfit, _ := strconv.ParseFloat(pos.UnRealizedProfit, 64)
	liqPrice, _ := strconv.ParseFloat(pos.LiquidationPrice, 64)
	leverage, _ := strconv.Atoi(pos.Leverage)

	return &ports.PositionRisk{
		Symbol:           pos.Symbol,
		PositionSide:     side,
		PositionAmt:      posAmt,
		EntryPrice:       entryPrice,
		MarkPrice:        markPrice,
		UnRealizedProfit: unProfit,
		LiquidationPrice: liqPrice,
		Leverage:         leverage,
	}, nil
}

func translateKline(bk *futures.Kline, symbol, interval string, now time.Time) (*domain.Candle, error) {
	if bk == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	closeTime := time.UnixMilli(bk.CloseTime)
	return &domain.Candle{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: closeTime,
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		// The REST endpoint includes the still-forming candle as the last
		// element; only candles whose close time has passed are final.
		IsFinal: closeTime.Before(now),
	}, nil
}
