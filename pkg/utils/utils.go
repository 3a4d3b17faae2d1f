package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Business number prefixes
const (
	PrefixAccount      = "ESC"
	PrefixTransaction  = "TXN"
	PrefixPayout       = "PAY"
	PrefixDisbursement = "DSB"
)

// GenerateBusinessNumber builds a human-readable reference like
// TXN-20260901-4830172956. Uniqueness is enforced by a unique index in the
// store; callers retry on collision.
func GenerateBusinessNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), randomDigits(10))
}

func randomDigits(n int) string {
	const digits = "0123456789"
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// fall back to a time-derived digit rather than panicking.
			out[i] = digits[time.Now().UnixNano()%int64(len(digits))]
			continue
		}
		out[i] = digits[idx.Int64()]
	}
	return string(out)
}

// CalculateFee applies a rate to an amount, rounded to 2 decimal places.
func CalculateFee(amount decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// NetAmount is amount minus fee.
func NetAmount(amount, fee decimal.Decimal) decimal.Decimal {
	return amount.Sub(fee)
}

// SameDay reports whether two instants fall on the same calendar day in t1's
// location.
func SameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.In(t1.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DayBounds returns the inclusive start and exclusive end of the day
// containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// DecimalFromFloat converts float64 to decimal.Decimal
func DecimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
