package wise

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeText strips accents and anything outside ASCII letters, digits and
// single spaces. The recipient API rejects names with other characters.
func SanitizeText(text string) string {
	decomposed := norm.NFD.String(strings.TrimSpace(text))

	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// BankAccount is the payout destination supplied by the caller. For Canadian
// accounts Transit holds the transit number; for US accounts it holds the ABA
// routing number.
type BankAccount struct {
	AccountHolderName string `json:"account_holder_name"`
	Currency          string `json:"currency"`
	Institution       string `json:"institution"`
	Transit           string `json:"transit"`
	AccountNumber     string `json:"account_number"`
	Type              string `json:"type"`
}

// Validate checks the bank details against the per-country number formats
// before any API call is made.
func (a BankAccount) Validate() error {
	required := map[string]string{
		"account_holder_name": a.AccountHolderName,
		"currency":            a.Currency,
		"transit":             a.Transit,
		"account_number":      a.AccountNumber,
		"type":                a.Type,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("missing bank account field: %s", field)
		}
	}

	if strings.ToUpper(a.Currency) == "CAD" {
		if len(a.Institution) != 3 || !isDigits(a.Institution) {
			return fmt.Errorf("institution number must be exactly 3 digits for Canadian accounts")
		}
		if len(a.Transit) != 5 || !isDigits(a.Transit) {
			return fmt.Errorf("transit number must be exactly 5 digits for Canadian accounts")
		}
		if len(a.AccountNumber) < 7 || len(a.AccountNumber) > 12 || !isDigits(a.AccountNumber) {
			return fmt.Errorf("account number must be 7-12 digits for Canadian accounts")
		}
		return nil
	}

	if len(a.Transit) != 9 || !isDigits(a.Transit) {
		return fmt.Errorf("routing number must be exactly 9 digits for US accounts")
	}
	if len(a.AccountNumber) < 4 || len(a.AccountNumber) > 17 || !isDigits(a.AccountNumber) {
		return fmt.Errorf("account number must be 4-17 digits for US accounts")
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
