package pricefeed

import (
	"context"
	"fmt"
	"math"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	latestAnswerSelector = crypto.Keccak256([]byte("latestAnswer()"))[:4]
	decimalsSelector     = crypto.Keccak256([]byte("decimals()"))[:4]
)

// ethCaller is the subset of ethclient.Client the chainlink provider needs,
// narrowed so tests can supply a fake without dialing a real node.
type ethCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkProvider reads a Chainlink-style aggregator's latestAnswer and
// decimals via raw eth_call, the same manual-selector pattern used for ERC20
// reads elsewhere in the inventory manager.
type ChainlinkProvider struct {
	client  ethCaller
	oracle  common.Address
}

// NewChainlinkProvider constructs a provider reading from the aggregator at
// oracle through client.
func NewChainlinkProvider(client ethCaller, oracle common.Address) *ChainlinkProvider {
	return &ChainlinkProvider{client: client, oracle: oracle}
}

func (p *ChainlinkProvider) FetchPrice(ctx context.Context) (float64, error) {
	rawAnswer, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &p.oracle, Data: latestAnswerSelector}, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: chainlink latestAnswer: %w", err)
	}
	rawDecimals, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &p.oracle, Data: decimalsSelector}, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: chainlink decimals: %w", err)
	}

	answer := new(big.Int).SetBytes(rawAnswer)
	// latestAnswer is a signed int256; treat the high bit as a sign per two's complement.
	if len(rawAnswer) == 32 && rawAnswer[0]&0x80 != 0 {
		answer.Sub(answer, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("%w: oracle %s returned %s", ErrNonPositivePrice, p.oracle, answer)
	}

	decimals := new(big.Int).SetBytes(rawDecimals).Uint64()

	answerF, _ := new(big.Float).SetInt(answer).Float64()
	return answerF / math.Pow(10, float64(decimals)), nil
}
