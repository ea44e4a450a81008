package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MistPerSui = 1_000_000_000

	MinBetMist     uint64 = 5_000_000   // 0.005 SUI
	GasReserveMist uint64 = 100_000_000 // 0.1 SUI kept aside for gas
)

var mistScale = decimal.New(MistPerSui, 0)

// SUIToMist converts a display amount to MIST, truncating any fraction of a
// MIST so a stake is never rounded up.
func SUIToMist(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	mist := amount.Mul(mistScale).Floor()

	v, err := strconv.ParseUint(mist.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %s SUI is out of range", ErrValidation, amount.String())
	}
	return v, nil
}

func ParseSUI(s string) (uint64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid SUI amount %q", ErrValidation, s)
	}
	return SUIToMist(amount)
}

func MistToSUI(mist uint64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatUint(mist, 10)).Div(mistScale)
}

func FormatMist(mist uint64) string {
	return MistToSUI(mist).String()
}

// CheckStake enforces the minimum bet and that the balance covers the stake
// plus the gas reserve.
func CheckStake(stake, balance uint64) error {
	if stake < MinBetMist {
		return fmt.Errorf("%w: minimum bet is %s SUI", ErrValidation, FormatMist(MinBetMist))
	}

	required := stake + GasReserveMist
	if balance < required {
		return fmt.Errorf("%w: insufficient balance: have %s SUI, need %s SUI (%s for bet + %s for gas)",
			ErrValidation, FormatMist(balance), FormatMist(required), FormatMist(stake), FormatMist(GasReserveMist))
	}
	return nil
}
