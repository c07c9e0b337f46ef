// Package sell drives a WLD sale from form submission to a recorded order.
//
// A submission moves through an explicit state machine:
//
//	Idle -> Validating -> AwaitingReference -> AwaitingWalletPayment
//	     -> ConfirmingPayment -> RecordingOrder -> Done
//
// Any step may end in Done with a Failure. Each network or wallet call is
// issued once and awaited before the next step; nothing is retried.
package sell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/wldsell/service/commission"
	"github.com/brojonat/wldsell/service/metrics"
	"github.com/shopspring/decimal"
)

// ReferenceIssuer mints a fresh payment reference.
type ReferenceIssuer interface {
	InitiatePayment(ctx context.Context) (string, error)
}

// WalletBridge executes on-chain payments through the seller's wallet.
type WalletBridge interface {
	IsInstalled() bool
	Pay(ctx context.Context, req PayRequest) (PayResponse, error)
}

// PaymentConfirmer verifies a wallet final payload server-side.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, payload FinalPayload) (bool, error)
}

// OrderRecorder persists a sale once its payment is confirmed.
type OrderRecorder interface {
	CreateOrder(ctx context.Context, order Order) (*Order, error)
}

// Notifier shows notifications to the seller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

const (
	// TokenSymbol is the token being sold.
	TokenSymbol = "WLD"

	// TokenDecimals is the number of decimals of the WLD token.
	TokenDecimals = 18

	// ProfilePath is where the seller lands after a successful sale.
	ProfilePath = "/perfil"

	// LoginPath is where an unauthenticated seller is sent.
	LoginPath = "/login"
)

var (
	// MinPaymentAmount and MaxPaymentAmount bound the amount sent to the wallet.
	MinPaymentAmount = decimal.NewFromInt(1)
	MaxPaymentAmount = decimal.NewFromInt(500)

	destinationRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ClampAmount constrains amount to [MinPaymentAmount, MaxPaymentAmount].
func ClampAmount(amount decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(amount, MinPaymentAmount), MaxPaymentAmount)
}

// TokenToDecimals converts a token amount to its integer base-unit string.
func TokenToDecimals(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(decimals).Truncate(0).String()
}

// Options holds the collaborators of an Orchestrator.
type Options struct {
	References  ReferenceIssuer
	Bridge      WalletBridge
	Confirmer   PaymentConfirmer
	Recorder    OrderRecorder
	Notifier    Notifier // Optional: defaults to a no-op notifier
	Schedule    commission.Schedule
	Destination string           // Address receiving the WLD payment
	Metrics     *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger      *slog.Logger
	Now         func() time.Time
}

// Orchestrator runs sell submissions.
type Orchestrator struct {
	references  ReferenceIssuer
	bridge      WalletBridge
	confirmer   PaymentConfirmer
	recorder    OrderRecorder
	notifier    Notifier
	schedule    commission.Schedule
	destination string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	seen     map[string]struct{}
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.References == nil || opts.Bridge == nil || opts.Confirmer == nil || opts.Recorder == nil {
		return nil, fmt.Errorf("references, bridge, confirmer and recorder are required")
	}
	if !destinationRegex.MatchString(opts.Destination) {
		return nil, fmt.Errorf("invalid destination address %q", opts.Destination)
	}
	if err := opts.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid commission schedule: %w", err)
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(context.Context, Notification) {})
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		references:  opts.References,
		bridge:      opts.Bridge,
		confirmer:   opts.Confirmer,
		recorder:    opts.Recorder,
		notifier:    opts.Notifier,
		schedule:    opts.Schedule,
		destination: opts.Destination,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "sell_orchestrator"),
		now:         opts.Now,
		inFlight:    make(map[string]struct{}),
		seen:        make(map[string]struct{}),
	}, nil
}

// Outcome is the result of one submission.
type Outcome struct {
	Final    Done
	Trace    []StateName
	Redirect string
}

// Err returns the submission failure, or nil on success.
func (o Outcome) Err() error {
	if o.Final.Failure == nil {
		return nil
	}
	return o.Final.Failure
}

// Submit runs one submission of form on behalf of user. A nil user is
// unauthenticated. On success the form is cleared.
//
// The form is checked with the order recorder's rules before any network
// call. Only one submission per user may be in flight; a concurrent Submit
// for the same user fails immediately without any network call.
func (o *Orchestrator) Submit(ctx context.Context, user *User, form *Form) Outcome {
	// Anonymous submissions stop at validation, so they take no token.
	if user != nil && strings.TrimSpace(user.Username) != "" {
		release, ok := o.acquire(user.Username)
		if !ok {
			f := fail(StateIdle, ErrSubmissionInFlight, titleInFlight, descInFlight, nil)
			o.notifier.Notify(ctx, f.Notification())
			o.recordOutcome(f)
			return Outcome{Final: Done{Failure: f}, Trace: []StateName{StateIdle, StateDone}}
		}
		defer release()
	}

	var st State = Idle{}
	trace := []StateName{st.Name()}
	st = Validating{User: user, Form: *form}

	for {
		trace = append(trace, st.Name())
		done, ok := st.(Done)
		if ok {
			return o.finish(ctx, done, trace, form)
		}
		st = o.step(ctx, st)
	}
}

func (o *Orchestrator) step(ctx context.Context, st State) State {
	switch s := st.(type) {
	case Validating:
		return o.validate(s)
	case AwaitingReference:
		return o.requestReference(ctx, s)
	case AwaitingWalletPayment:
		return o.pay(ctx, s)
	case ConfirmingPayment:
		return o.confirm(ctx, s)
	case RecordingOrder:
		return o.record(ctx, s)
	default:
		return Done{Failure: fail(st.Name(), ErrValidation, titleSaleError, descSaleError,
			fmt.Errorf("no transition from state %q", st.Name()))}
	}
}

func (o *Orchestrator) validate(s Validating) State {
	if s.User == nil || strings.TrimSpace(s.User.Username) == "" {
		return Done{Failure: fail(StateValidating, ErrValidation, titleLoginRequired, descLoginRequired,
			fmt.Errorf("unauthenticated")),
		}
	}

	if err := s.Form.Validate(*s.User); err != nil {
		title, desc := validationNotice(err)
		return Done{Failure: fail(StateValidating, ErrValidation, title, desc, err)}
	}

	return AwaitingReference{
		User: *s.User,
		Sale: SaleRequest{
			Amount:        s.Form.Amount,
			PaymentMethod: s.Form.PaymentMethod,
			Destination:   s.Form.Destination(),
		},
		Quote: o.schedule.Calculate(s.Form.Amount, s.Form.WLDPrice),
	}
}

// validationNotice picks the notification for a rejected form field.
func validationNotice(err error) (string, string) {
	var fe *FieldError
	if !errors.As(err, &fe) {
		return titleSaleError, descSaleError
	}
	switch fe.Field {
	case "username", "email":
		return titleInvalidSeller, descInvalidSeller
	case "amount":
		return titleInvalidAmount, descInvalidAmount
	case "wldprice":
		return titleInvalidPrice, descInvalidPrice
	case "paymentmethod", "destination":
		return titleMissingPayout, descMissingPayout
	default:
		return titleInvalidPayout, descInvalidPayout
	}
}

func (o *Orchestrator) requestReference(ctx context.Context, s AwaitingReference) State {
	ref, err := o.references.InitiatePayment(ctx)
	if err == nil && ref == "" {
		err = fmt.Errorf("empty reference")
	}
	if err != nil {
		return Done{Failure: fail(StateAwaitingReference, ErrReferenceUnavailable, titlePaymentError, descPaymentError, err)}
	}

	if !o.markSeen(ref) {
		return Done{Failure: fail(StateAwaitingReference, ErrReferenceReused, titlePaymentError, descPaymentError,
			fmt.Errorf("reference %s was already used", ref))}
	}

	if !o.bridge.IsInstalled() {
		f := fail(StateAwaitingReference, ErrWalletUnavailable, titleWalletMissing, descWalletMissing, nil)
		f.Reason = ReasonNotInstalled
		return Done{Failure: f}
	}

	amount := ClampAmount(s.Sale.Amount)
	return AwaitingWalletPayment{
		AwaitingReference: s,
		Reference:         ref,
		Request: PayRequest{
			Reference: ref,
			To:        o.destination,
			Tokens: []TokenAmount{{
				Symbol:      TokenSymbol,
				TokenAmount: TokenToDecimals(amount, TokenDecimals),
			}},
			Description: fmt.Sprintf("Pago de %s WLD en la mini app", amount.String()),
		},
	}
}

func (o *Orchestrator) pay(ctx context.Context, s AwaitingWalletPayment) State {
	o.logger.InfoContext(ctx, "requesting wallet payment",
		"reference", s.Reference,
		"username", s.User.Username,
		"token_amount", s.Request.Tokens[0].TokenAmount,
	)

	resp, err := o.bridge.Pay(ctx, s.Request)
	if err != nil {
		f := fail(StateAwaitingWalletPayment, ErrPaymentRejected, titlePaymentError, descPaymentError, err)
		f.Reason = ReasonRejected
		return Done{Failure: f}
	}

	payload := resp.FinalPayload
	if !payload.Succeeded() {
		f := fail(StateAwaitingWalletPayment, ErrPaymentRejected, titlePaymentFailed, descPaymentFailed,
			fmt.Errorf("wallet status %q (error_code %q)", payload.Status, payload.ErrorCode))
		f.Reason = ReasonRejected
		if payload.ErrorCode == "user_rejected" {
			f.Reason = ReasonCancelled
		}
		return Done{Failure: f}
	}

	if payload.Reference != "" && payload.Reference != s.Reference {
		f := fail(StateAwaitingWalletPayment, ErrPaymentRejected, titlePaymentFailed, descPaymentFailed,
			fmt.Errorf("wallet answered for reference %s, expected %s", payload.Reference, s.Reference))
		f.Reason = ReasonRejected
		return Done{Failure: f}
	}

	return ConfirmingPayment{AwaitingWalletPayment: s, Payload: payload}
}

func (o *Orchestrator) confirm(ctx context.Context, s ConfirmingPayment) State {
	ok, err := o.confirmer.ConfirmPayment(ctx, s.Payload)
	if err != nil {
		return Done{Failure: fail(StateConfirmingPayment, ErrConfirmationFailed, titlePaymentError, descPaymentError, err)}
	}
	if !ok {
		return Done{Failure: fail(StateConfirmingPayment, ErrConfirmationFailed, titleNotConfirmed, descNotConfirmed,
			fmt.Errorf("confirmation service rejected transaction %s", s.Payload.TransactionID))}
	}

	return RecordingOrder{
		user:      s.User,
		sale:      s.Sale,
		quote:     s.Quote,
		confirmed: ConfirmedPayment{reference: s.Reference, payload: s.Payload},
	}
}

func (o *Orchestrator) record(ctx context.Context, s RecordingOrder) State {
	dest := s.sale.Destination
	order := Order{
		Reference:     s.confirmed.reference,
		Username:      s.user.Username,
		Email:         s.user.Email,
		Amount:        s.sale.Amount,
		PaymentMethod: s.sale.PaymentMethod,
		BankName:      dest.BankName,
		FullName:      dest.FullName,
		AccountNumber: dest.AccountNumber,
		PayPalEmail:   dest.PayPalEmail,
		WLDPrice:      s.quote.Price,
		Commission:    s.quote.Commission,
		NetAmount:     s.quote.NetAmount,
		Status:        StatusPending,
		Timestamp:     o.now().UTC(),
	}

	stored, err := o.recorder.CreateOrder(ctx, order)
	if err != nil {
		// The payment already settled on-chain; nothing compensates it here.
		o.logger.ErrorContext(ctx, "order not recorded after confirmed payment",
			"reference", s.confirmed.reference,
			"transaction_id", s.confirmed.TransactionID(),
			"username", s.user.Username,
			"amount", s.sale.Amount.String(),
			"error", err,
		)
		return Done{Failure: fail(StateRecordingOrder, ErrPersistenceFailed, titleSaleError, descSaleError, err)}
	}
	if stored == nil {
		stored = &order
	}
	return Done{Order: stored}
}

func (o *Orchestrator) finish(ctx context.Context, done Done, trace []StateName, form *Form) Outcome {
	out := Outcome{Final: done, Trace: trace}

	if f := done.Failure; f != nil {
		o.logger.WarnContext(ctx, "sell submission failed",
			"stage", f.Stage,
			"kind", f.Kind.Error(),
			"error", f.Err,
		)
		o.notifier.Notify(ctx, f.Notification())
		if f.Stage == StateValidating && f.Title == titleLoginRequired {
			out.Redirect = LoginPath
		}
		o.recordOutcome(f)
		return out
	}

	o.logger.InfoContext(ctx, "sell submission succeeded",
		"reference", done.Order.Reference,
		"username", done.Order.Username,
		"net_amount", done.Order.NetAmount.String(),
	)
	o.notifier.Notify(ctx, Notification{Title: titleSaleSucceeded, Description: descSaleSucceeded})
	form.Reset()
	out.Redirect = ProfilePath
	o.recordOutcome(nil)
	return out
}

func (o *Orchestrator) recordOutcome(f *Failure) {
	if o.metrics == nil {
		return
	}
	if f == nil {
		o.metrics.RecordSellOutcome(string(StateDone), "success")
		return
	}
	o.metrics.RecordSellOutcome(string(f.Stage), f.Kind.Error())
}

// acquire takes the in-flight token for key.
func (o *Orchestrator) acquire(key string) (func(), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inFlight[key]; busy {
		return nil, false
	}
	o.inFlight[key] = struct{}{}

	return func() {
		o.mu.Lock()
		delete(o.inFlight, key)
		o.mu.Unlock()
	}, true
}

// markSeen records ref and reports whether it was new.
func (o *Orchestrator) markSeen(ref string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, dup := o.seen[ref]; dup {
		return false
	}
	o.seen[ref] = struct{}{}
	return true
}
