//nolint:wrapcheck
package withdrawals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownMethod      = errors.New("unknown withdrawal method")
	ErrDestinationEmpty   = errors.New("withdrawal destination is empty")
	ErrBankNameEmpty      = errors.New("bank name is required for bank withdrawals")
	ErrUnknownCryptoAsset = errors.New("unknown crypto asset")
)

type Method string

const (
	MethodMobileMoney Method = "mobile-money"
	MethodBank        Method = "bank"
	MethodCrypto      Method = "crypto"
)

func ParseMethod(method string) (Method, error) {
	switch strings.ToLower(method) {
	case "mobile-money", "mobile_money", "mpesa":
		return MethodMobileMoney, nil
	case "bank":
		return MethodBank, nil
	case "crypto":
		return MethodCrypto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

var cryptoAssets = map[string]bool{
	"USDT": true,
	"BTC":  true,
	"ETH":  true,
}

// Payout describes where an approved withdrawal is paid out to.
type Payout struct {
	Method      Method
	Destination string
	BankName    string
	CryptoType  string
}

func (p Payout) Validate() error {
	if strings.TrimSpace(p.Destination) == "" {
		return ErrDestinationEmpty
	}

	switch p.Method {
	case MethodMobileMoney:
	case MethodBank:
		if strings.TrimSpace(p.BankName) == "" {
			return ErrBankNameEmpty
		}
	case MethodCrypto:
		if !cryptoAssets[strings.ToUpper(p.CryptoType)] {
			return fmt.Errorf("%w: %q", ErrUnknownCryptoAsset, p.CryptoType)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, p.Method)
	}

	return nil
}

// Withdrawal is a payout request. Its amount is reserved out of the balance
// when the request is created and released again if it is rejected.
type Withdrawal struct {
	ID         string
	UserID     string
	Amount     decimal.Decimal
	Payout     Payout
	State      requests.State
	AdminNotes string
	ReviewerID string
	CreatedAt  time.Time
	DecidedAt  time.Time
}

func NewWithdrawal(userID string, amount decimal.Decimal, payout Payout, now time.Time) (*Withdrawal, error) {
	if err := accounts.ValidateUserID(userID); err != nil {
		return nil, err
	}

	if err := requests.ValidateAmount(amount); err != nil {
		return nil, err
	}

	if err := payout.Validate(); err != nil {
		return nil, err
	}

	payout.Destination = strings.TrimSpace(payout.Destination)
	payout.BankName = strings.TrimSpace(payout.BankName)
	payout.CryptoType = strings.ToUpper(payout.CryptoType)

	if payout.Method != MethodBank {
		payout.BankName = ""
	}

	if payout.Method != MethodCrypto {
		payout.CryptoType = ""
	}

	return &Withdrawal{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Payout:    payout,
		State:     requests.StatePending,
		CreatedAt: now,
	}, nil
}

func (w *Withdrawal) Decide(decision requests.Decision, reviewerID, notes string, now time.Time) error {
	state, err := w.State.Transition(decision)
	if err != nil {
		return err
	}

	w.State = state
	w.ReviewerID = reviewerID
	w.DecidedAt = now

	if notes != "" {
		w.AdminNotes = notes
	}

	return nil
}

// Release is the balance change applied when the withdrawal reaches state.
// Only a rejection returns the reserved amount.
func (w *Withdrawal) Release(state requests.State) decimal.Decimal {
	if state == requests.StateRejected {
		return w.Amount
	}

	return decimal.Zero
}
