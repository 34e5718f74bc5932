// Package requests holds the lifecycle vocabulary shared by deposit and
// withdrawal requests.
package requests

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountNotPositive  = errors.New("amount must be greater than zero")
	ErrAmountPrecision    = errors.New("amount must have at most two decimal places")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrUnknownDecision    = errors.New("unknown decision")
	ErrUnknownRequestKind = errors.New("unknown request kind")
)

// MoneyScale is the number of decimal places carried by monetary amounts.
const MoneyScale = 2

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// Transition returns the state reached by applying decision to s.
// Only pending requests can be decided.
func (s State) Transition(decision Decision) (State, error) {
	if s != StatePending {
		return s, fmt.Errorf("%w: %s request cannot be %s", ErrInvalidTransition, s, decision.State())
	}

	return decision.State(), nil
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(decision string) (Decision, error) {
	switch decision {
	case "approve", "approved":
		return DecisionApprove, nil
	case "reject", "rejected":
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
}

// State is the terminal state produced by the decision.
func (d Decision) State() State {
	if d == DecisionApprove {
		return StateApproved
	}

	return StateRejected
}

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindInvestment Kind = "investment"
)

func ParseKind(kind string) (Kind, error) {
	switch kind {
	case "deposit", "deposits":
		return KindDeposit, nil
	case "withdrawal", "withdrawals":
		return KindWithdrawal, nil
	case "investment", "investments":
		return KindInvestment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRequestKind, kind)
	}
}

// ValidateAmount checks that amount is a positive monetary value.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}

	return ValidatePrecision(amount)
}

func ValidatePrecision(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyScale)) {
		return ErrAmountPrecision
	}

	return nil
}
