// Package pricing содержит расчёт комиссии платформы и доли аффилиата.
// Расчёт выполняется ровно в одном месте: и при оформлении заказа,
// и при подтверждении оплаты используется этот пакет.
package pricing

import (
	"errors"
	"math"
)

// Ошибки валидации входных данных расчёта.
var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrInvalidFeeRate = errors.New("fee rate must be within [0, 1]")
)

// Split вычисляет комиссию платформы и долю аффилиата в центах.
// Комиссия округляется до целого цента один раз; доля аффилиата — остаток,
// поэтому сумма частей всегда равна исходной сумме.
func Split(amountCents int64, feeRate float64) (commissionCents, affiliateCents int64, err error) {
	if amountCents < 0 {
		return 0, 0, ErrNegativeAmount
	}
	if math.IsNaN(feeRate) || feeRate < 0 || feeRate > 1 {
		return 0, 0, ErrInvalidFeeRate
	}

	commissionCents = int64(math.Round(float64(amountCents) * feeRate))
	affiliateCents = amountCents - commissionCents
	if affiliateCents < 0 {
		affiliateCents = 0
	}

	return commissionCents, affiliateCents, nil
}
