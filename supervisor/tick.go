package supervisor

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/eventbus"
	"github.com/defistate/market-maker/evaluator"
	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/inventory"
	"github.com/defistate/market-maker/optimizer"
	"github.com/defistate/market-maker/orderbuilder"
	"github.com/defistate/market-maker/pool"
)

// optimizeConcurrency bounds how many candidates are sized concurrently in
// step 6 of the evaluation-tick algorithm.
const optimizeConcurrency = 4

// sizedCandidate pairs a scored Readjustment with the sized Trade the
// optimizer produced for it.
type sizedCandidate struct {
	readjustment evaluator.Readjustment
	trade        optimizer.Trade
}

// tick runs the full evaluation-tick algorithm (spec §4.11) for one stream
// message: apply it to the cache, gather fresh price/inventory context,
// evaluate every component, size and select the best opportunity, and
// submit it.
func (l *Loop) tick(ctx context.Context, msg *pool.StreamMessage) error {
	// 1. Apply to the protocol cache (single writer).
	if err := l.deps.Cache.Apply(msg); err != nil {
		return fmt.Errorf("supervisor: apply stream message: %w", err)
	}

	// 2. Fetch reference price, market context, inventory, and the gas
	// token's USD rate concurrently; all must complete before step 3.
	var (
		reference    float64
		marketCtx    inventory.MarketContext
		inv          inventory.Inventory
		gasTokenRate float64
		fetchErrs    [4]error
	)
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); reference, fetchErrs[0] = l.deps.PriceFeed.FetchPrice(ctx) }()
	go func() { defer wg.Done(); marketCtx, fetchErrs[1] = l.deps.Inventory.FetchContext(ctx, msg.BlockNumber) }()
	go func() { defer wg.Done(); inv, fetchErrs[2] = l.deps.Inventory.FetchInventory(ctx) }()
	go func() {
		defer wg.Done()
		if l.deps.GasTokenPriceFeed == nil {
			return
		}
		gasTokenRate, fetchErrs[3] = l.deps.GasTokenPriceFeed.FetchPrice(ctx)
	}()
	wg.Wait()

	for _, err := range fetchErrs {
		if err != nil {
			return fmt.Errorf("supervisor: fetch tick context: %w", err)
		}
	}

	// 3. Validate the reference against the median pool spot price; an
	// outlier is not an error, just a skipped tick.
	components := l.deps.Cache.ListComponents()
	spots := make([]float64, 0, len(components))
	for _, c := range components {
		spot, err := l.deps.Cache.SpotPrice(c.ID, l.cfg.Pair.Base.Address, l.cfg.Pair.Quote.Address)
		if err != nil {
			continue
		}
		spots = append(spots, spot)
	}
	poolMedian := median(spots)
	if poolMedian > 0 {
		if threshold := l.cfg.OutlierThresholdBps; threshold > 0 {
			dev := deviationBps(reference, poolMedian)
			if dev > threshold || dev < -threshold {
				l.deps.Logger.Warn("supervisor: reference price is an outlier, skipping tick",
					"reference", reference, "pool_median", poolMedian, "deviation_bps", dev)
				return nil
			}
		}
	}

	// 4. Publish the rate-limited price tick.
	if l.deps.Publisher != nil {
		l.deps.Publisher.PublishPriceTick(ctx, eventbus.PriceTick{
			InstanceID: l.cfg.InstanceID,
			Reference:  reference,
			PoolMedian: poolMedian,
		})
	}

	// 5. Evaluate every component against the reference price.
	candidates := make([]evaluator.Candidate, 0, len(components))
	for _, c := range components {
		spot, err := l.deps.Cache.SpotPrice(c.ID, l.cfg.Pair.Base.Address, l.cfg.Pair.Quote.Address)
		if err != nil {
			continue
		}
		candidates = append(candidates, evaluator.Candidate{
			Component:       c.ID,
			Spot:            spot,
			BaseReserve:     c.Balances[l.cfg.Pair.Base.Address],
			QuoteReserve:    c.Balances[l.cfg.Pair.Quote.Address],
			BaseDecimals:    l.cfg.Pair.Base.Decimals,
			QuoteDecimals:   l.cfg.Pair.Quote.Decimals,
			GasTokenUSDRate: gasTokenRate,
		})
	}
	readjustments := evaluator.Evaluate(candidates, reference, l.cfg.Evaluator)
	if len(readjustments) == 0 {
		return nil
	}

	// 6. Size each candidate (bounded concurrency); already-filtered by
	// Optimize's MinExecutableSpreadBps floor, satisfying step 7.
	gasPriceWei, err := l.deps.RPC.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: suggest gas price: %w", err)
	}

	sized := l.sizeCandidates(ctx, readjustments, inv, gasPriceWei, gasTokenRate)
	if len(sized) == 0 {
		return nil
	}

	// 8. Sort descending by profit and select the first (one-per-block).
	sort.SliceStable(sized, func(i, j int) bool {
		return sized[i].trade.ProfitDeltaBps > sized[j].trade.ProfitDeltaBps
	})
	winner := sized[0]

	return l.submit(ctx, winner, marketCtx, inv)
}

// sizeCandidates runs the optimizer over every readjustment concurrently,
// dropping any that fail to size or miss the executable-spread floor.
func (l *Loop) sizeCandidates(ctx context.Context, readjustments []evaluator.Readjustment, inv inventory.Inventory, gasPriceWei *big.Int, gasTokenRate float64) []sizedCandidate {
	results := make([]sizedCandidate, 0, len(readjustments))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, optimizeConcurrency)

	for _, r := range readjustments {
		r := r
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			trade, ok := l.optimizeOne(r, inv, gasPriceWei, gasTokenRate)
			if !ok {
				return
			}
			mu.Lock()
			results = append(results, sizedCandidate{readjustment: r, trade: trade})
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (l *Loop) optimizeOne(r evaluator.Readjustment, inv inventory.Inventory, gasPriceWei *big.Int, gasTokenRate float64) (optimizer.Trade, bool) {
	tokenIn, tokenOut := l.tradeTokens(r.Side)

	sellBalance := inv.QuoteBalance
	if r.Side == evaluator.Sell {
		sellBalance = inv.BaseBalance
	}
	aMax := inventoryCap(sellBalance, l.cfg.MaxInventoryRatio)
	aMin := big.NewInt(1)
	if aMax == nil || aMax.Cmp(aMin) <= 0 {
		return optimizer.Trade{}, false
	}

	sim := func(amountIn *big.Int) (*big.Int, uint64, error) {
		return l.deps.Cache.Simulate(r.Component, amountIn, tokenIn, tokenOut)
	}

	cfg := l.cfg.Optimizer
	cfg.ReferencePriceOutPerIn = referencePriceOutPerIn(r.Reference, r.Side, l.cfg.Pair.Base.Decimals, l.cfg.Pair.Quote.Decimals)
	cfg.GasPriceWei = gasPriceWei
	cfg.GasTokenPerOutputUnit = gasTokenPerOutputUnit(gasTokenRate, r.Reference, r.Side, l.cfg.Pair.Base.Decimals, l.cfg.Pair.Quote.Decimals)

	trade, err := optimizer.Optimize(sim, aMin, aMax, cfg)
	if err != nil {
		return optimizer.Trade{}, false
	}
	return trade, true
}

func inventoryCap(balance *big.Int, ratio float64) *big.Int {
	if balance == nil || ratio <= 0 {
		return nil
	}
	capped := new(big.Float).Mul(new(big.Float).SetInt(balance), big.NewFloat(ratio))
	out, _ := capped.Int(nil)
	return out
}

func (l *Loop) tradeTokens(side evaluator.Side) (tokenIn, tokenOut common.Address) {
	if side == evaluator.Sell {
		return l.cfg.Pair.Base.Address, l.cfg.Pair.Quote.Address
	}
	return l.cfg.Pair.Quote.Address, l.cfg.Pair.Base.Address
}

// submit builds the order for the winning candidate, prepending an approve
// transaction if needed, and reports the outcome.
func (l *Loop) submit(ctx context.Context, winner sizedCandidate, marketCtx inventory.MarketContext, inv inventory.Inventory) error {
	tokenIn, tokenOut := l.tradeTokens(winner.readjustment.Side)

	currentAllowance := inv.QuoteAllowance
	if winner.readjustment.Side == evaluator.Sell {
		currentAllowance = inv.BaseAllowance
	}
	needsApproval, approveAmount := l.cfg.ApprovalPolicy.NeedsApproval(currentAllowance, winner.trade.AmountIn)

	tip, err := l.deps.RPC.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: suggest gas tip cap: %w", err)
	}
	feeCap, err := l.deps.RPC.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: suggest gas price: %w", err)
	}
	fees := exec.CapFees(orderbuilder.GasFees{MaxFeePerGas: feeCap, MaxPriorityFeePerGas: tip}, l.cfg.MaxFeePerGasCap)

	blockTime := uint64(time.Now().Unix())

	order, err := orderbuilder.Build(l.cfg.Order, winner.trade, tokenIn, tokenOut, marketCtx.Nonce, blockTime, fees, needsApproval, approveAmount)
	if err != nil {
		return fmt.Errorf("supervisor: build order: %w", err)
	}

	if l.deps.Publisher != nil {
		l.deps.Publisher.PublishTradeAttempt(ctx, eventbus.TradeAttempt{
			InstanceID: l.cfg.InstanceID,
			Component:  string(winner.readjustment.Component),
			Side:       winner.readjustment.Side.String(),
			AmountIn:   winner.trade.AmountIn.String(),
			ProfitBps:  winner.trade.ProfitDeltaBps,
		})
	}

	result, execErr := l.deps.Exec.Execute(ctx, order)
	if execErr != nil || result.Err != nil {
		reason := execErr
		if reason == nil {
			reason = result.Err
		}
		l.deps.Logger.Error("supervisor: trade submission failed", "error", reason, "component", winner.readjustment.Component)
		if l.deps.Publisher != nil {
			l.deps.Publisher.PublishTradeResult(ctx, eventbus.TradeResult{
				InstanceID: l.cfg.InstanceID,
				Status:     eventbus.TradeStatusFailed,
				AmountIn:   winner.trade.AmountIn.String(),
				ProfitBps:  winner.trade.ProfitDeltaBps,
			})
		}
		return nil
	}

	l.deps.Logger.Info("supervisor: trade submitted", "component", winner.readjustment.Component, "tx_hash", result.TxHash.Hex())
	if l.deps.Publisher != nil {
		l.deps.Publisher.PublishTradeResult(ctx, eventbus.TradeResult{
			InstanceID: l.cfg.InstanceID,
			TxHash:     result.TxHash.Hex(),
			Status:     eventbus.TradeStatusSuccess,
			AmountIn:   winner.trade.AmountIn.String(),
			AmountOut:  winner.trade.AmountOut.String(),
			ProfitBps:  winner.trade.ProfitDeltaBps,
		})
	}
	return nil
}
