package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConcurrentUpdate = errors.New("credit profile was modified concurrently")
	ErrLedgerMismatch   = errors.New("ledger does not reconstruct current balance")
)

type ValidationCode string

const (
	CodeNotEligible          ValidationCode = "NOT_ELIGIBLE"
	CodeProductNotEligible   ValidationCode = "PRODUCT_NOT_ELIGIBLE"
	CodeInsufficientCredit   ValidationCode = "INSUFFICIENT_CREDIT"
	CodeAlreadyPaid          ValidationCode = "ALREADY_PAID"
	CodeInsufficientStock    ValidationCode = "INSUFFICIENT_STOCK"
	CodeInvalidInput         ValidationCode = "INVALID_INPUT"
	CodeBatchNotProcessable  ValidationCode = "BATCH_NOT_PROCESSABLE"
	CodeCollectionNotPayable ValidationCode = "COLLECTION_NOT_PAYABLE"
)

// ValidationError is a business rule failure surfaced to the caller as is.
// Two validation errors match under errors.Is when their codes are equal.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotEligible          = &ValidationError{Code: CodeNotEligible, Message: "Farmer is not eligible for credit"}
	ErrProductNotEligible   = &ValidationError{Code: CodeProductNotEligible, Message: "Product is not eligible for credit purchase"}
	ErrInsufficientCredit   = &ValidationError{Code: CodeInsufficientCredit, Message: "Insufficient credit balance"}
	ErrAlreadyPaid          = &ValidationError{Code: CodeAlreadyPaid, Message: "Collection is already paid"}
	ErrInsufficientStock    = &ValidationError{Code: CodeInsufficientStock, Message: "Insufficient stock"}
	ErrInvalidInput         = &ValidationError{Code: CodeInvalidInput, Message: "Invalid input"}
	ErrBatchNotProcessable  = &ValidationError{Code: CodeBatchNotProcessable, Message: "Payment batch cannot be processed"}
	ErrCollectionNotPayable = &ValidationError{Code: CodeCollectionNotPayable, Message: "Collection cannot be paid"}
)

// ConsistencyError marks a record that disappeared or no longer matches
// mid-operation. Batch loops skip the item and continue.
type ConsistencyError struct {
	Entity string
	ID     string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("inconsistent %s %s", e.Entity, e.ID)
	}
	return fmt.Sprintf("inconsistent %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConsistency(err error) bool {
	var c *ConsistencyError
	return errors.As(err, &c)
}
