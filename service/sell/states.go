package sell

import (
	"github.com/brojonat/wldsell/service/commission"
)

// StateName identifies a state of the sell state machine.
type StateName string

const (
	StateIdle                  StateName = "idle"
	StateValidating            StateName = "validating"
	StateAwaitingReference     StateName = "awaiting_reference"
	StateAwaitingWalletPayment StateName = "awaiting_wallet_payment"
	StateConfirmingPayment     StateName = "confirming_payment"
	StateRecordingOrder        StateName = "recording_order"
	StateDone                  StateName = "done"
)

// State is one state of a submission. The set of implementations is closed;
// each state carries exactly the data produced by the steps before it.
type State interface {
	Name() StateName
	sealed()
}

// Idle is the state before the seller submits.
type Idle struct{}

// Validating holds the raw submission.
type Validating struct {
	User *User
	Form Form
}

// AwaitingReference holds a validated sale waiting for a payment reference.
type AwaitingReference struct {
	User  User
	Sale  SaleRequest
	Quote commission.Quote
}

// AwaitingWalletPayment holds the payment request handed to the wallet.
type AwaitingWalletPayment struct {
	AwaitingReference
	Reference string
	Request   PayRequest
}

// ConfirmingPayment holds the wallet's successful final payload.
type ConfirmingPayment struct {
	AwaitingWalletPayment
	Payload FinalPayload
}

// ConfirmedPayment proves that the confirmation service accepted a
// payload. It can only be produced by the confirmation step.
type ConfirmedPayment struct {
	reference string
	payload   FinalPayload
}

// Reference returns the confirmed payment reference.
func (c ConfirmedPayment) Reference() string { return c.reference }

// TransactionID returns the wallet transaction id of the confirmed payment.
func (c ConfirmedPayment) TransactionID() string { return c.payload.TransactionID }

// RecordingOrder is only reachable with a ConfirmedPayment.
type RecordingOrder struct {
	user      User
	sale      SaleRequest
	quote     commission.Quote
	confirmed ConfirmedPayment
}

// Confirmed returns the confirmation this order is recorded against.
func (r RecordingOrder) Confirmed() ConfirmedPayment { return r.confirmed }

// Done is the terminal state. Exactly one of Order and Failure is set.
type Done struct {
	Order   *Order
	Failure *Failure
}

// Succeeded reports whether the submission recorded an order.
func (d Done) Succeeded() bool { return d.Failure == nil && d.Order != nil }

func (Idle) Name() StateName                  { return StateIdle }
func (Validating) Name() StateName            { return StateValidating }
func (AwaitingReference) Name() StateName     { return StateAwaitingReference }
func (AwaitingWalletPayment) Name() StateName { return StateAwaitingWalletPayment }
func (ConfirmingPayment) Name() StateName     { return StateConfirmingPayment }
func (RecordingOrder) Name() StateName        { return StateRecordingOrder }
func (Done) Name() StateName                  { return StateDone }

func (Idle) sealed()                  {}
func (Validating) sealed()            {}
func (AwaitingReference) sealed()     {}
func (AwaitingWalletPayment) sealed() {}
func (ConfirmingPayment) sealed()     {}
func (RecordingOrder) sealed()        {}
func (Done) sealed()                  {}
