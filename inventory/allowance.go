package inventory

import "math/big"

// MaxUint256 is the approval amount used under the infinite_approval policy.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ApprovalPolicy decides whether a fresh approve transaction must precede a
// trade of amount on token, given its current grant.
type ApprovalPolicy struct {
	// InfiniteApproval issues a single max-value approve on first need
	// instead of a tight-fit approve before every trade.
	InfiniteApproval bool
}

// NeedsApproval reports whether currentAllowance is insufficient for amount,
// and if so, the amount that should be approved under the configured policy.
func (p ApprovalPolicy) NeedsApproval(currentAllowance, amount *big.Int) (needed bool, approveAmount *big.Int) {
	if currentAllowance.Cmp(amount) >= 0 {
		return false, nil
	}
	if p.InfiniteApproval {
		return true, MaxUint256
	}
	return true, new(big.Int).Set(amount)
}
