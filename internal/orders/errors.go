package orders

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/store"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindTransactionFailure Kind = "transaction_failure"
	KindInternal           Kind = "internal"
)

const (
	CodeInvalidInput         = "invalid_input"
	CodeTrackingRequired     = "tracking_number_required"
	CodeProofRequired        = "proof_of_delivery_required"
	CodeOrderNotFound        = "order_not_found"
	CodeProductNotFound      = "product_not_found"
	CodeSellerNotFound       = "seller_not_found"
	CodeChatNotFound         = "chat_not_found"
	CodeNotAllowed           = "not_allowed"
	CodeProductNotOwned      = "product_not_owned"
	CodeChatMismatch         = "chat_mismatch"
	CodeInsufficientStock    = "insufficient_stock"
	CodeProductUnavailable   = "product_unavailable"
	CodeInvalidTransition    = "invalid_transition"
	CodeRefundNotDirect      = "refund_not_direct"
	CodeAlreadyPaid          = "already_paid"
	CodeCODPayment           = "cod_confirmed_on_delivery"
	CodeOrderClosed          = "order_closed"
	CodeEscrowReleased       = "escrow_already_released"
	CodeConcurrentWrite      = "concurrent_write"
	CodeReferenceDisappeared = "reference_disappeared"
	CodeInternal             = "internal_error"
)

// Error is the only error type the engine returns. Kind is the stable
// category, Code a finer machine-checkable reason.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) with(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func validationf(format string, args ...interface{}) *Error {
	return newError(KindValidation, CodeInvalidInput, format, args...)
}

func forbiddenf(format string, args ...interface{}) *Error {
	return newError(KindForbidden, CodeNotAllowed, format, args...)
}

// KindOf returns the category of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the reason code of err, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// classify maps whatever came out of a transaction onto the taxonomy. Errors
// the engine raised inside the callback pass through untouched.
func classify(err error) error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return e
	case errors.Is(err, store.ErrConflict):
		return &Error{Kind: KindTransactionFailure, Code: CodeConcurrentWrite,
			Message: "the order was modified concurrently, retry the request", Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindTransactionFailure, Code: CodeReferenceDisappeared,
			Message: "a referenced document disappeared during the transaction", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTransactionFailure, Code: CodeConcurrentWrite,
			Message: "the transaction did not complete in time", Err: err}
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}
