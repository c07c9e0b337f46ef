package sell

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod selects how the seller is paid out.
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank"
	MethodPayPal       PaymentMethod = "paypal"
)

// Valid reports whether m is a known payout method.
func (m PaymentMethod) Valid() bool {
	return m == MethodBankTransfer || m == MethodPayPal
}

// OrderStatus is the lifecycle status of a recorded order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pendiente"
	StatusConfirmed OrderStatus = "confirmada"
	StatusFailed    OrderStatus = "fallida"
)

// User is the authenticated seller. Authentication itself happens elsewhere.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Destination holds payout details. Only the fields of the selected
// method are populated.
type Destination struct {
	BankName      string `json:"bankname"`
	FullName      string `json:"fullname"`
	AccountNumber string `json:"accountnumber"`
	PayPalEmail   string `json:"paypalemail"`
}

// Form is the in-memory state of the sell form. It is owned by a single
// submission while that submission is in flight.
type Form struct {
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	BankName      string
	FullName      string
	AccountNumber string
	PayPalEmail   string

	// WLDPrice is the live price shown to the seller when submitting.
	WLDPrice decimal.Decimal
}

// Reset clears the fields the seller typed. The selected method and the
// price snapshot are kept.
func (f *Form) Reset() {
	f.Amount = decimal.Zero
	f.BankName = ""
	f.FullName = ""
	f.AccountNumber = ""
	f.PayPalEmail = ""
}

// Destination returns the payout destination for the selected method,
// leaving the other method's fields empty.
func (f Form) Destination() Destination {
	switch f.PaymentMethod {
	case MethodBankTransfer:
		return Destination{
			BankName:      strings.TrimSpace(f.BankName),
			FullName:      strings.TrimSpace(f.FullName),
			AccountNumber: strings.TrimSpace(f.AccountNumber),
		}
	case MethodPayPal:
		return Destination{PayPalEmail: strings.TrimSpace(f.PayPalEmail)}
	default:
		return Destination{}
	}
}

// Complete reports whether every field required by method is present and
// no field of the other method is set.
func (d Destination) Complete(method PaymentMethod) bool {
	switch method {
	case MethodBankTransfer:
		return d.BankName != "" && d.FullName != "" && d.AccountNumber != "" && d.PayPalEmail == ""
	case MethodPayPal:
		return d.PayPalEmail != "" && d.BankName == "" && d.FullName == "" && d.AccountNumber == ""
	default:
		return false
	}
}

// SaleRequest is a validated sale ready for payment.
type SaleRequest struct {
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	Destination   Destination
}

// TokenAmount is one token line of a wallet payment request.
type TokenAmount struct {
	Symbol      string `json:"symbol"`
	TokenAmount string `json:"token_amount"`
}

// PayRequest is handed to the wallet bridge.
type PayRequest struct {
	Reference   string        `json:"reference"`
	To          string        `json:"to"`
	Tokens      []TokenAmount `json:"tokens"`
	Description string        `json:"description"`
}

// FinalPayload is the wallet's final answer for a payment request.
type FinalPayload struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	From          string `json:"from,omitempty"`
	Chain         string `json:"chain,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	Version       int    `json:"version,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
}

// Succeeded reports whether the wallet executed the payment.
func (p FinalPayload) Succeeded() bool {
	return p.Status == PayloadStatusSuccess
}

// PayloadStatusSuccess is the only final payload status that moves a sale forward.
const PayloadStatusSuccess = "success"

// PayResponse wraps the final payload returned by the wallet bridge.
type PayResponse struct {
	FinalPayload FinalPayload `json:"finalPayload"`
}

// Order is a recorded sale as exchanged with the order recorder.
type Order struct {
	ID            int64           `json:"id,omitempty"`
	Reference     string          `json:"reference"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"paymentmethod"`
	BankName      string          `json:"bankname"`
	FullName      string          `json:"fullname"`
	AccountNumber string          `json:"accountnumber"`
	PayPalEmail   string          `json:"paypalemail"`
	WLDPrice      decimal.Decimal `json:"wldprice"`
	Commission    decimal.Decimal `json:"commission"`
	NetAmount     decimal.Decimal `json:"netamount"`
	Status        OrderStatus     `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Notification is a short user-facing message shown at the end of a
// submission or at any failure.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Destructive bool   `json:"destructive"`
}
