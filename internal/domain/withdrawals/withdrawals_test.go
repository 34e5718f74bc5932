package withdrawals

import (
	"testing"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutValidate(t *testing.T) {
	tests := []struct {
		name   string
		payout Payout
		want   error
	}{
		{name: "mobile money", payout: Payout{Method: MethodMobileMoney, Destination: "+254700000000"}},
		{name: "bank", payout: Payout{Method: MethodBank, Destination: "0123456789", BankName: "KCB"}},
		{name: "crypto", payout: Payout{Method: MethodCrypto, Destination: "0xabc", CryptoType: "usdt"}},
		{name: "missing destination", payout: Payout{Method: MethodMobileMoney, Destination: "  "}, want: ErrDestinationEmpty},
		{name: "bank without name", payout: Payout{Method: MethodBank, Destination: "0123"}, want: ErrBankNameEmpty},
		{name: "unknown asset", payout: Payout{Method: MethodCrypto, Destination: "0xabc", CryptoType: "DOGE"}, want: ErrUnknownCryptoAsset},
		{name: "unknown method", payout: Payout{Method: "cheque", Destination: "x"}, want: ErrUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payout.Validate()
			if tt.want == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, in := range []string{"mobile-money", "Mobile_Money", "mpesa"} {
		m, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, MethodMobileMoney, m, in)
	}

	assert.Equal(t, "mobile-money", string(MethodMobileMoney))

	_, err := ParseMethod("paypal")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestNewWithdrawalNormalizesPayout(t *testing.T) {
	w, err := NewWithdrawal("user-1", decimal.NewFromInt(80), Payout{
		Method:      MethodCrypto,
		Destination: " 0xabc ",
		BankName:    "ignored",
		CryptoType:  "eth",
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "0xabc", w.Payout.Destination)
	assert.Equal(t, "ETH", w.Payout.CryptoType)
	assert.Empty(t, w.Payout.BankName)
	assert.Equal(t, requests.StatePending, w.State)
}

func TestWithdrawalRelease(t *testing.T) {
	w := &Withdrawal{Amount: decimal.NewFromInt(80), State: requests.StatePending}

	assert.True(t, w.Release(requests.StateRejected).Equal(decimal.NewFromInt(80)))
	assert.True(t, w.Release(requests.StateApproved).IsZero())
}
