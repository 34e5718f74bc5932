package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
)

// DecisionResult is the outcome of a successful review.
type DecisionResult struct {
	Kind       requests.Kind
	RequestID  string
	UserID     string
	State      requests.State
	ReviewerID string
	DecidedAt  time.Time
	// Balance is the account balance right after the decision committed.
	Balance decimal.Decimal
}

func checkReview(reviewer accounts.Identity, decision requests.Decision) error {
	if !reviewer.IsAdmin {
		return ErrNotAuthorized
	}

	if decision != requests.DecisionApprove && decision != requests.DecisionReject {
		return fmt.Errorf("%w: %w: %q", ErrInvalidInput, requests.ErrUnknownDecision, decision)
	}

	return nil
}

// ReviewDeposit decides a pending deposit. Approval credits amount plus bonus
// in the same transaction as the state change; rejection moves no money.
//
// A request that is no longer pending yields *AlreadyDecidedError and no
// balance effect.
func (l *Ledger) ReviewDeposit(
	ctx context.Context, requestID string, reviewer accounts.Identity, decision requests.Decision, notes string,
) (res *DecisionResult, err error) {
	start := time.Now()
	defer func() { l.observe("review_deposit", start, err) }()

	if err := checkReview(reviewer, decision); err != nil {
		return nil, err
	}

	var result *DecisionResult

	err = l.inTx(ctx, "review_deposit", func(tx storage.Tx) error {
		dep, err := tx.GetDeposit(ctx, requestID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if dep.State.IsTerminal() {
			return &AlreadyDecidedError{Kind: requests.KindDeposit, RequestID: dep.ID, State: dep.State}
		}

		if err := dep.Decide(decision, reviewer.UserID, notes, l.now()); err != nil {
			return fmt.Errorf("deposit.Decide: %w", err)
		}

		if err := tx.DecideDeposit(ctx, dep); err != nil {
			return fmt.Errorf("tx.DecideDeposit: %w", err)
		}

		acct, err := tx.GetAccount(ctx, dep.UserID)
		if err != nil {
			return fmt.Errorf("tx.GetAccount: %w", err)
		}

		moved := decimal.Zero
		evType := events.DepositRejected

		if dep.State == requests.StateApproved {
			moved = dep.Credit()
			evType = events.DepositApproved

			acct, err = tx.AdjustBalance(ctx, dep.UserID, moved, acct.Version)
			if err != nil {
				return fmt.Errorf("tx.AdjustBalance: %w", err)
			}
		}

		ev := events.New(evType, dep.UserID, dep.ID, reviewer.UserID, dep.DecidedAt).WithAmounts(moved, acct.Balance)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		result = &DecisionResult{
			Kind:       requests.KindDeposit,
			RequestID:  dep.ID,
			UserID:     dep.UserID,
			State:      dep.State,
			ReviewerID: dep.ReviewerID,
			DecidedAt:  dep.DecidedAt,
			Balance:    acct.Balance,
		}

		return nil
	})
	if err != nil {
		return nil, l.decisionError(ctx, requests.KindDeposit, requestID, err)
	}

	l.logDecision(result)

	return result, nil
}

// ReviewWithdrawal decides a pending withdrawal. Approval only finalizes the
// reservation taken at submission; rejection credits the reserved amount back.
func (l *Ledger) ReviewWithdrawal(
	ctx context.Context, requestID string, reviewer accounts.Identity, decision requests.Decision, notes string,
) (res *DecisionResult, err error) {
	start := time.Now()
	defer func() { l.observe("review_withdrawal", start, err) }()

	if err := checkReview(reviewer, decision); err != nil {
		return nil, err
	}

	var result *DecisionResult

	err = l.inTx(ctx, "review_withdrawal", func(tx storage.Tx) error {
		wd, err := tx.GetWithdrawal(ctx, requestID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if wd.State.IsTerminal() {
			return &AlreadyDecidedError{Kind: requests.KindWithdrawal, RequestID: wd.ID, State: wd.State}
		}

		if err := wd.Decide(decision, reviewer.UserID, notes, l.now()); err != nil {
			return fmt.Errorf("withdrawal.Decide: %w", err)
		}

		if err := tx.DecideWithdrawal(ctx, wd); err != nil {
			return fmt.Errorf("tx.DecideWithdrawal: %w", err)
		}

		acct, err := tx.GetAccount(ctx, wd.UserID)
		if err != nil {
			return fmt.Errorf("tx.GetAccount: %w", err)
		}

		evType := events.WithdrawalApproved
		released := wd.Release(wd.State)

		if released.IsPositive() {
			evType = events.WithdrawalRejected

			acct, err = tx.AdjustBalance(ctx, wd.UserID, released, acct.Version)
			if err != nil {
				return fmt.Errorf("tx.AdjustBalance: %w", err)
			}
		}

		ev := events.New(evType, wd.UserID, wd.ID, reviewer.UserID, wd.DecidedAt).WithAmounts(released, acct.Balance)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		result = &DecisionResult{
			Kind:       requests.KindWithdrawal,
			RequestID:  wd.ID,
			UserID:     wd.UserID,
			State:      wd.State,
			ReviewerID: wd.ReviewerID,
			DecidedAt:  wd.DecidedAt,
			Balance:    acct.Balance,
		}

		return nil
	})
	if err != nil {
		return nil, l.decisionError(ctx, requests.KindWithdrawal, requestID, err)
	}

	l.logDecision(result)

	return result, nil
}

// decisionError turns a lost state-conditioned update into an
// *AlreadyDecidedError carrying the state the winner recorded.
func (l *Ledger) decisionError(ctx context.Context, kind requests.Kind, requestID string, err error) error {
	var decided *AlreadyDecidedError
	if errors.As(err, &decided) || !errors.Is(err, storage.ErrAlreadyDecided) {
		return err
	}

	state, rerr := l.requestState(ctx, kind, requestID)
	if rerr != nil {
		return err
	}

	return &AlreadyDecidedError{Kind: kind, RequestID: requestID, State: state}
}

func (l *Ledger) requestState(ctx context.Context, kind requests.Kind, requestID string) (requests.State, error) {
	var state requests.State

	err := l.store.ReadSnapshot(ctx, func(r storage.Reader) error {
		switch kind {
		case requests.KindDeposit:
			dep, err := r.GetDeposit(ctx, requestID)
			if err != nil {
				return err //nolint:wrapcheck
			}

			state = dep.State
		default:
			wd, err := r.GetWithdrawal(ctx, requestID)
			if err != nil {
				return err //nolint:wrapcheck
			}

			state = wd.State
		}

		return nil
	})

	return state, err //nolint:wrapcheck
}

func (l *Ledger) logDecision(res *DecisionResult) {
	l.log.Info("Request decided",
		slog.String("request_id", res.RequestID),
		slog.String("kind", string(res.Kind)),
		slog.String("state", res.State.String()),
		slog.String("reviewer_id", res.ReviewerID),
		slog.Time("decided_at", res.DecidedAt),
		slog.String("balance", res.Balance.String()),
	)
}
