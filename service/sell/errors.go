package sell

import (
	"errors"
	"fmt"
)

// Failure kinds. A *Failure matches its kind with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrReferenceUnavailable = errors.New("payment reference unavailable")
	ErrReferenceReused      = errors.New("payment reference reused")
	ErrWalletUnavailable    = errors.New("wallet not installed")
	ErrPaymentRejected      = errors.New("payment failed or cancelled")
	ErrConfirmationFailed   = errors.New("payment not confirmed")
	ErrPersistenceFailed    = errors.New("could not process sale")
	ErrSubmissionInFlight   = errors.New("a submission is already in flight")
)

// PaymentFailureReason classifies a non-successful wallet outcome.
type PaymentFailureReason string

const (
	ReasonNotInstalled PaymentFailureReason = "not_installed"
	ReasonCancelled    PaymentFailureReason = "cancelled"
	ReasonRejected     PaymentFailureReason = "rejected"
)

// Failure is the terminal error of a submission. It carries the
// notification shown to the seller.
type Failure struct {
	Kind        error
	Stage       StateName
	Reason      PaymentFailureReason
	Title       string
	Description string
	Err         error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at %s: %v", f.Kind, f.Stage, f.Err)
	}
	return fmt.Sprintf("%s at %s", f.Kind, f.Stage)
}

// Unwrap exposes both the kind and the underlying cause.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// Notification returns the destructive notification for this failure.
func (f *Failure) Notification() Notification {
	return Notification{Title: f.Title, Description: f.Description, Destructive: true}
}

func fail(stage StateName, kind error, title, description string, cause error) *Failure {
	return &Failure{
		Kind:        kind,
		Stage:       stage,
		Title:       title,
		Description: description,
		Err:         cause,
	}
}

// Notification texts shown to the seller.
const (
	titleLoginRequired = "Inicia sesión primero"
	descLoginRequired  = "Debes iniciar sesión para vender WLD"
	titleInvalidAmount = "Cantidad inválida"
	descInvalidAmount  = "Introduce una cantidad válida de WLD"
	titleMissingPayout = "Datos de pago incompletos"
	descMissingPayout  = "Completa los datos del método de pago seleccionado"
	titleInvalidPayout = "Datos de pago inválidos"
	descInvalidPayout  = "Revisa los datos del método de pago seleccionado"
	titleInvalidSeller = "Datos de usuario inválidos"
	descInvalidSeller  = "Revisa tu nombre de usuario y tu correo electrónico"
	titleInvalidPrice  = "Precio no disponible"
	descInvalidPrice   = "No se pudo obtener un precio válido de WLD"
	titleWalletMissing = "Wallet no detectada"
	descWalletMissing  = "Por favor instala World App para poder pagar"
	titlePaymentFailed = "Pago fallido o cancelado"
	descPaymentFailed  = "El pago no se completó."
	titleNotConfirmed  = "Pago no confirmado"
	descNotConfirmed   = "Hubo un problema verificando el pago."
	titlePaymentError  = "Error en el pago"
	descPaymentError   = "Inténtalo de nuevo más tarde."
	titleSaleError     = "Error al procesar la venta"
	descSaleError      = "Por favor, inténtalo de nuevo más tarde."
	titleInFlight      = "Venta en curso"
	descInFlight       = "Espera a que termine la venta anterior."
	titleSaleSucceeded = "¡Venta procesada con éxito!"
	descSaleSucceeded  = "Recibirás tu pago en menos de 12 horas."
)
