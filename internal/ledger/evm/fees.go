package evm

import "math/big"

// BumpFee raises v by percent, rounding up.
func BumpFee(v *big.Int, percent uint64) *big.Int {
	if v == nil {
		return nil
	}

	out := new(big.Int).Mul(v, new(big.Int).SetUint64(100+percent))
	out.Add(out, big.NewInt(99))

	return out.Div(out, big.NewInt(100))
}

// feeCaps derives EIP-1559 caps from the suggested tip and current base fee.
func feeCaps(tip, baseFee *big.Int, percent uint64) (tipCap, feeCap *big.Int) {
	tipCap = BumpFee(tip, percent)

	feeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)

	return tipCap, BumpFee(feeCap, percent)
}
