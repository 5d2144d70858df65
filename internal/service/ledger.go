package service

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shared support for the two ledger-backed instruments (gift cards and store
// credit): human-enterable code generation and balance math.

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L) because
// operators key codes in by hand at the register.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	codeLength      = 16
	maxCodeAttempts = 5
)

// generateInstrumentCode returns a random code like "GC-XXXXXXXXXXXXXXXX".
// Uniqueness is only probabilistic here; the insert relies on the unique
// index and retries on collision.
func generateInstrumentCode(prefix string) (string, error) {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// isDuplicateKey detects a unique-constraint violation on insert. GORM only
// translates the error when the dialector has TranslateError set, so the
// postgres SQLSTATE is matched as a fallback.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}

// minorUnitEpsilon is the tolerance for monetary equality checks (one cent).
var minorUnitEpsilon = decimal.New(1, -2)

// amountsEqual compares two monetary amounts within the currency's minor unit.
func amountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(minorUnitEpsilon)
}

// taxPortion extracts the tax contained in a tax-inclusive gross amount:
// gross * rate / (100 + rate), rounded to the minor unit.
func taxPortion(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return gross.Mul(rate).Div(hundred.Add(rate)).Round(2)
}
