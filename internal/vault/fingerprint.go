package vault

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/angelmondragon/payvault-backend/pkg/db/models"
	"github.com/angelmondragon/payvault-backend/pkg/enums"
)

// Fingerprint identifies a physical card within a provider without the PAN.
// Any difference in the inputs yields a different fingerprint.
func Fingerprint(provider enums.PaymentProvider, brand, last4 string, expMonth, expYear *int) string {
	month, year := "", ""
	if expMonth != nil {
		month = fmt.Sprintf("%02d", *expMonth)
	}
	if expYear != nil {
		year = fmt.Sprintf("%04d", normalizeYear(*expYear))
	}
	canonical := strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(string(provider))),
		strings.ToUpper(strings.TrimSpace(brand)),
		strings.TrimSpace(last4),
		month,
		year,
	}, "|")
	sum := blake2b.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// IsExpired compares the card expiry month with the month of now. Cards with
// unknown expiry never expire locally.
func IsExpired(card *models.CustomerPaymentMethod, now time.Time) bool {
	if card == nil || card.ExpMonth == nil || card.ExpYear == nil {
		return false
	}
	year := normalizeYear(*card.ExpYear)
	month := time.Month(*card.ExpMonth)
	if year != now.Year() {
		return year < now.Year()
	}
	return month < now.Month()
}

func normalizeYear(year int) int {
	if year >= 0 && year < 100 {
		return 2000 + year
	}
	return year
}
