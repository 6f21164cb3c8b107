package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind groups error codes into the classes the boundary maps to transport statuses.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindPermission  Kind = "PERMISSION"
	KindUnavailable Kind = "UNAVAILABLE"
)

// Stable machine-readable error codes.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeOverlappingPeriod   = "OVERLAPPING_PERIOD"
	CodeLocationsNotReady   = "LOCATIONS_NOT_READY"
	CodeAlreadyProcessed    = "ALREADY_PROCESSED"
	CodeAlreadyPending      = "ALREADY_PENDING"
	CodeInvalidPeriodStatus = "INVALID_PERIOD_STATUS"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeNoOpenPeriod        = "NO_OPEN_PERIOD"
	CodePricesIncomplete    = "PRICES_INCOMPLETE"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeTransactionTimeout  = "TRANSACTION_TIMEOUT"
	CodeConcurrentUpdate    = "CONCURRENT_UPDATE"
)

// Error is the typed failure returned by every core operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation          = &Error{Kind: KindValidation, Code: CodeValidation, Message: "validation failed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "not found"}
	ErrInsufficientStock   = &Error{Kind: KindConflict, Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrOverlappingPeriod   = &Error{Kind: KindConflict, Code: CodeOverlappingPeriod, Message: "period overlaps an existing period"}
	ErrLocationsNotReady   = &Error{Kind: KindConflict, Code: CodeLocationsNotReady, Message: "locations not ready"}
	ErrAlreadyProcessed    = &Error{Kind: KindConflict, Code: CodeAlreadyProcessed, Message: "already processed"}
	ErrAlreadyPending      = &Error{Kind: KindConflict, Code: CodeAlreadyPending, Message: "approval already pending"}
	ErrInvalidPeriodStatus = &Error{Kind: KindConflict, Code: CodeInvalidPeriodStatus, Message: "invalid period status"}
	ErrInvalidStatus       = &Error{Kind: KindConflict, Code: CodeInvalidStatus, Message: "invalid status"}
	ErrNoOpenPeriod        = &Error{Kind: KindConflict, Code: CodeNoOpenPeriod, Message: "no open period"}
	ErrPricesIncomplete    = &Error{Kind: KindConflict, Code: CodePricesIncomplete, Message: "period prices incomplete"}
	ErrPermissionDenied    = &Error{Kind: KindPermission, Code: CodePermissionDenied, Message: "permission denied"}
	ErrTransactionTimeout  = &Error{Kind: KindUnavailable, Code: CodeTransactionTimeout, Message: "transaction timed out"}
	ErrConcurrentUpdate    = &Error{Kind: KindConflict, Code: CodeConcurrentUpdate, Message: "concurrent update"}
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Validation builds a VALIDATION_FAILED error.
func Validation(message string, fields ...FieldError) *Error {
	e := &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
	if len(fields) > 0 {
		e.Detail = fields
	}
	return e
}

// NotFound builds a NOT_FOUND error for the named entity.
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", entity, id),
		Detail:  map[string]any{"entity": entity, "id": id},
	}
}

// Conflict builds a CONFLICT-kind error with the given code.
func Conflict(code, message string, detail any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Detail: detail}
}

// InvalidPeriodStatus reports a period that is not in the state an operation needs.
func InvalidPeriodStatus(periodID int64, have, want string) *Error {
	return Conflict(CodeInvalidPeriodStatus, fmt.Sprintf("period %d is %s, expected %s", periodID, have, want),
		map[string]any{"period_id": periodID, "status": have, "expected": want})
}

// InvalidStatus reports an entity whose lifecycle status blocks the operation.
func InvalidStatus(entity string, id int64, have string) *Error {
	return Conflict(CodeInvalidStatus, fmt.Sprintf("%s %d is %s", entity, id, have),
		map[string]any{"entity": entity, "id": id, "status": have})
}

// AlreadyProcessed reports a decision attempted on a non-pending record.
func AlreadyProcessed(entity string, id int64, status string) *Error {
	return Conflict(CodeAlreadyProcessed, fmt.Sprintf("%s %d already %s", entity, id, status),
		map[string]any{"entity": entity, "id": id, "status": status})
}

// PermissionDenied reports an actor lacking the named permission.
func PermissionDenied(actor Actor, perm string) *Error {
	return &Error{
		Kind:    KindPermission,
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("actor %d (%s) lacks %s", actor.ID, actor.Role, perm),
		Detail:  map[string]any{"permission": perm},
	}
}

// Timeout wraps a deadline failure from the storage layer.
func Timeout(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Code: CodeTransactionTimeout, Message: op + " timed out; retry", Err: err}
}

// ConcurrentUpdate reports a transaction that lost a serialization race. Retrying it is safe.
func ConcurrentUpdate(op string, err error) *Error {
	return &Error{Kind: KindConflict, Code: CodeConcurrentUpdate, Message: op + " conflicted with a concurrent update; retry", Err: err}
}

// Shortage is one offending line of an insufficient-stock failure.
type Shortage struct {
	LocationID int64           `json:"location_id"`
	ItemID     int64           `json:"item_id"`
	Requested  decimal.Decimal `json:"requested"`
	Available  decimal.Decimal `json:"available"`
}

// InsufficientStock lists every item that cannot cover its requested quantity.
func InsufficientStock(shortages []Shortage) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %d item(s)", len(shortages)),
		Detail:  shortages,
	}
}

// Shortages extracts the insufficient-stock detail from err, if any.
func Shortages(err error) []Shortage {
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeInsufficientStock {
		return nil
	}
	list, _ := e.Detail.([]Shortage)
	return list
}

// KindOf reports the taxonomy kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
