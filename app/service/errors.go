package service

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrPaymentRequestNotFound = errors.New("payment request not found")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrReconciliationSkipped  = errors.New("reconciliation skipped")
	ErrDuplicateReceipt       = errors.New("duplicate provider receipt")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrOwnerNotFound          = errors.New("owner not found")
	ErrVehicleNotFound        = errors.New("vehicle not found")
)
