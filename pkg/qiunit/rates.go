// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package qiunit

import (
	"errors"
	"math/big"
)

// ErrZeroQuote is returned when an exchange rate is built from a quote with
// a zero qit side.
var ErrZeroQuote = errors.New("exchange rate quote has zero qit amount")

// ExchangeRate is the conversion rate between the Qi and Quai ledgers,
// stored canonically as wei per qit in a big.Rat to avoid accumulating
// rounding error across conversions. The rate floats block to block; nodes
// quote it through quai_qiToQuai.
type ExchangeRate struct {
	weiPerQit *big.Rat
}

// NewExchangeRateFromQuote derives a rate from a node quote: the Quai value
// in wei returned for a given qit amount.
func NewExchangeRateFromQuote(qits, wei *big.Int) (ExchangeRate, error) {
	if qits == nil || qits.Sign() == 0 {
		return ExchangeRate{}, ErrZeroQuote
	}

	return ExchangeRate{
		weiPerQit: new(big.Rat).SetFrac(
			new(big.Int).Set(wei), new(big.Int).Set(qits),
		),
	}, nil
}

// QiToQuai converts a qit amount to its Quai value in wei, rounded down.
func (r ExchangeRate) QiToQuai(qits *big.Int) *big.Int {
	if r.weiPerQit == nil {
		return new(big.Int)
	}

	wei := new(big.Rat).Mul(r.weiPerQit, new(big.Rat).SetInt(qits))

	return new(big.Int).Quo(wei.Num(), wei.Denom())
}

// QuaiToQi converts a wei amount to its Qi value in qits, rounded down.
func (r ExchangeRate) QuaiToQi(wei *big.Int) *big.Int {
	if r.weiPerQit == nil || r.weiPerQit.Sign() == 0 {
		return new(big.Int)
	}

	qits := new(big.Rat).Quo(new(big.Rat).SetInt(wei), r.weiPerQit)

	return new(big.Int).Quo(qits.Num(), qits.Denom())
}

// String returns the rate in wei/qit.
func (r ExchangeRate) String() string {
	if r.weiPerQit == nil {
		return "0 wei/qit"
	}

	return r.weiPerQit.FloatString(3) + " wei/qit"
}
