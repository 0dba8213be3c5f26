package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrBalanceNotFound  = errors.New("balance not found")
	ErrPlanNotFound     = errors.New("plan not found or inactive")
	ErrPurchaseNotFound = errors.New("pending purchase not found")
)

// InsufficientCreditsError reports a rejected debit together with the
// credits the user actually had at the moment of the check.
type InsufficientCreditsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: available %d, requested %d", e.Available, e.Requested)
}

// PaymentNotCompletedError is returned by the synchronous verify path
// when the provider reports any payment status other than completed.
type PaymentNotCompletedError struct {
	Status string
}

func (e *PaymentNotCompletedError) Error() string {
	return fmt.Sprintf("payment not completed, provider status: %q", e.Status)
}
