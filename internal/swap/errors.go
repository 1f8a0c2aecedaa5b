package swap

import (
	"errors"
	"fmt"
)

// ErrorKind is the swap error taxonomy surfaced in receipts and aggregated
// into the run report. The runner decides retry vs terminal from this tag,
// never from error strings.
type ErrorKind string

const (
	KindTransport           ErrorKind = "transport"
	KindRateLimited         ErrorKind = "rate_limited"
	KindQuote               ErrorKind = "quote"
	KindSlippage            ErrorKind = "slippage"
	KindQuoteStale          ErrorKind = "quote_stale"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindAuth                ErrorKind = "auth"
	KindVerification        ErrorKind = "verification"
	KindConfig              ErrorKind = "config"
	KindUnknown             ErrorKind = "unknown"
)

// Retryable reports whether the runner may retry this kind within budget.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransport, KindRateLimited, KindSlippage, KindQuoteStale:
		return true
	}
	return false
}

// NeedsFreshQuote reports whether a retry must discard the current quote.
func (k ErrorKind) NeedsFreshQuote() bool {
	return k == KindSlippage || k == KindQuoteStale
}

// Error is a classified swap error. TxID is set when the failure happened
// after a transaction was already submitted (e.g. verification).
type Error struct {
	Kind   ErrorKind
	Detail string
	TxID   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(kind ErrorKind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Classify extracts the kind from an error, defaulting to unknown so
// unclassified failures are never retried.
func Classify(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Detail extracts a human detail string from an error.
func Detail(err error) string {
	var se *Error
	if errors.As(err, &se) {
		if se.Err != nil {
			return fmt.Sprintf("%s: %v", se.Detail, se.Err)
		}
		return se.Detail
	}
	return err.Error()
}

// TxIDOf extracts the submitted transaction id from an error, if any.
func TxIDOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.TxID
	}
	return ""
}
