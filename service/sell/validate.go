package sell

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Field limits shared by the sell form and the order recorder.
const (
	MaxUsernameLength = 100
	MaxFieldLength    = 200
)

// MaxStoredValue is the exclusive upper bound of any amount, price or
// net amount an order can hold: NUMERIC(38,18) keeps 20 integer digits.
var MaxStoredValue = decimal.New(1, 20)

// FieldError reports the first invalid field of a sale.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return e.Msg
}

func fieldErrorf(field, format string, args ...any) error {
	return &FieldError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ValidateText checks a free-text field for length and control characters.
func ValidateText(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return fieldErrorf(field, "%s too long: maximum length is %d characters", field, maxLen)
	}
	for _, r := range value {
		if r == 0 || unicode.IsControl(r) {
			return fieldErrorf(field, "invalid characters in %s: control characters not allowed", field)
		}
	}
	return nil
}

// ValidateEmail checks that value is a bare email address.
func ValidateEmail(field, value string) error {
	if err := ValidateText(field, value, MaxFieldLength); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return fieldErrorf(field, "invalid %s", field)
	}
	return nil
}

// ValidateSeller checks the seller identity attached to an order. The
// email is optional.
func ValidateSeller(u User) error {
	if strings.TrimSpace(u.Username) == "" {
		return fieldErrorf("username", "username is required")
	}
	if err := ValidateText("username", u.Username, MaxUsernameLength); err != nil {
		return err
	}
	if u.Email != "" {
		return ValidateEmail("email", u.Email)
	}
	return nil
}

// ValidateSale checks the amount sold and the price snapshot, including
// that their product fits an order.
func ValidateSale(amount, price decimal.Decimal) error {
	if !amount.IsPositive() {
		return fieldErrorf("amount", "amount must be positive")
	}
	if amount.GreaterThanOrEqual(MaxStoredValue) {
		return fieldErrorf("amount", "amount too large")
	}
	if price.IsNegative() {
		return fieldErrorf("wldprice", "wldprice cannot be negative")
	}
	if price.GreaterThanOrEqual(MaxStoredValue) {
		return fieldErrorf("wldprice", "wldprice too large")
	}
	if amount.Mul(price).GreaterThanOrEqual(MaxStoredValue) {
		return fieldErrorf("amount", "amount too large for price %s", price)
	}
	return nil
}

// Validate checks d as the payout destination of method: every field is
// clean text, exactly the method's fields are set and a PayPal address
// is a valid email.
func (d Destination) Validate(method PaymentMethod) error {
	if !method.Valid() {
		return fieldErrorf("paymentmethod", "invalid paymentmethod: must be %q or %q", MethodBankTransfer, MethodPayPal)
	}

	fields := []struct{ name, value string }{
		{"bankname", d.BankName},
		{"fullname", d.FullName},
		{"accountnumber", d.AccountNumber},
		{"paypalemail", d.PayPalEmail},
	}
	for _, f := range fields {
		if err := ValidateText(f.name, f.value, MaxFieldLength); err != nil {
			return err
		}
	}

	if !d.Complete(method) {
		return fieldErrorf("destination", "payout details must contain exactly the fields of paymentmethod %q", method)
	}
	if method == MethodPayPal {
		return ValidateEmail("paypalemail", d.PayPalEmail)
	}
	return nil
}

// Validate checks the form as submitted by user against the same rules
// the order recorder applies.
func (f Form) Validate(user User) error {
	if err := ValidateSeller(user); err != nil {
		return err
	}
	if err := ValidateSale(f.Amount, f.WLDPrice); err != nil {
		return err
	}
	return f.Destination().Validate(f.PaymentMethod)
}
