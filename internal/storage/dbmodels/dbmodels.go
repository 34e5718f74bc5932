package dbmodels

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	UserID    string
	Balance   decimal.Decimal
	IsAdmin   bool
	IsActive  bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Deposit struct {
	ID             string
	UserID         string
	Amount         decimal.Decimal
	BonusAmount    decimal.Decimal
	ProofReference string
	Reference      string
	State          string
	AdminNotes     string
	ReviewerID     string
	CreatedAt      time.Time
	DecidedAt      sql.NullTime
}

type Withdrawal struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Method      string
	Destination string
	BankName    string
	CryptoType  string
	State       string
	AdminNotes  string
	ReviewerID  string
	CreatedAt   time.Time
	DecidedAt   sql.NullTime
}

type Package struct {
	ID                string
	Name              string
	Description       string
	Price             decimal.Decimal
	ReturnsPercentage decimal.Decimal
	DurationMonths    int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Position struct {
	ID             string
	UserID         string
	PackageID      string
	AmountInvested decimal.Decimal
	PurchaseDate   time.Time
	MaturityDate   time.Time
	State          string
}

type Event struct {
	ID          string
	Type        string
	UserID      string
	SubjectID   string
	ActorID     string
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	CreatedAt   time.Time
	PublishedAt sql.NullTime
}

// NullTime maps a zero time to SQL NULL.
func NullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
