package orderbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressArrayTy, _ = abi.NewType("address[]", "", nil)

	swapExactTokensForTokensSelector = crypto.Keccak256(
		[]byte("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)"),
	)[:4]
	swapExactTokensForTokensArgs = abi.Arguments{
		{Type: uint256Ty},
		{Type: uint256Ty},
		{Type: addressArrayTy},
		{Type: addressTy},
		{Type: uint256Ty},
	}
)

// UniswapV2Encoder encodes the standard Uniswap V2 router swap call for a
// direct two-hop path (tokenIn -> tokenOut).
type UniswapV2Encoder struct {
	Recipient common.Address
}

func (e UniswapV2Encoder) EncodeSwap(tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, deadline uint64) ([]byte, error) {
	path := []common.Address{tokenIn, tokenOut}
	packed, err := swapExactTokensForTokensArgs.Pack(
		amountIn,
		minAmountOut,
		path,
		e.Recipient,
		new(big.Int).SetUint64(deadline),
	)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(swapExactTokensForTokensSelector)+len(packed))
	data = append(data, swapExactTokensForTokensSelector...)
	data = append(data, packed...)
	return data, nil
}
