package pgstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/andymarkow/fundledger/internal/storage/dbmodels"
	"github.com/lib/pq"
)

const (
	accountColumns = `user_id, balance, is_admin, is_active, version, created_at, updated_at`

	depositColumns = `id, user_id, amount, bonus_amount, proof_reference, reference, state,` +
		` admin_notes, reviewer_id, created_at, decided_at`

	withdrawalColumns = `id, user_id, amount, method, destination, bank_name, crypto_type, state,` +
		` admin_notes, reviewer_id, created_at, decided_at`

	packageColumns = `id, name, description, price, returns_percentage, duration_months,` +
		` is_active, created_at, updated_at`

	positionColumns = `id, user_id, package_id, amount_invested, purchase_date, maturity_date, state`

	eventColumns = `id, type, user_id, subject_id, actor_id, amount, balance, created_at, published_at`
)

var _ storage.Reader = reader{}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// reader runs queries on a single transaction.
type reader struct {
	q queryer
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func limitArg(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}

func stateArgs(states []requests.State) []string {
	result := make([]string, 0, len(states))

	for _, s := range states {
		result = append(result, s.String())
	}

	return result
}

func (r reader) GetAccount(ctx context.Context, userID string) (*accounts.Account, error) {
	dbAccount := new(dbmodels.Account)

	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	if err := scanAccount(row, dbAccount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}

		return nil, fmt.Errorf("db.QueryRowContext: %w", err)
	}

	return toAccount(dbAccount), nil
}

func (r reader) GetDeposit(ctx context.Context, id string) (*deposits.Deposit, error) {
	dbDeposit := new(dbmodels.Deposit)

	row := r.q.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id)
	if err := scanDeposit(row, dbDeposit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDepositNotFound
		}

		return nil, fmt.Errorf("db.QueryRowContext: %w", err)
	}

	return toDeposit(dbDeposit), nil
}

func (r reader) GetWithdrawal(ctx context.Context, id string) (*withdrawals.Withdrawal, error) {
	dbWithdrawal := new(dbmodels.Withdrawal)

	row := r.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	if err := scanWithdrawal(row, dbWithdrawal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrWithdrawalNotFound
		}

		return nil, fmt.Errorf("db.QueryRowContext: %w", err)
	}

	return toWithdrawal(dbWithdrawal), nil
}

func (r reader) GetPackage(ctx context.Context, id string) (*investments.Package, error) {
	dbPackage := new(dbmodels.Package)

	row := r.q.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM investment_packages WHERE id = $1`, id)
	if err := scanPackage(row, dbPackage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPackageNotFound
		}

		return nil, fmt.Errorf("db.QueryRowContext: %w", err)
	}

	return toPackage(dbPackage), nil
}

func (r reader) ListDepositsByUser(ctx context.Context, userID string, limit int) ([]*deposits.Deposit, error) {
	return r.listDeposits(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limitArg(limit),
	)
}

func (r reader) ListDepositsByState(ctx context.Context, states ...requests.State) ([]*deposits.Deposit, error) {
	if len(states) == 0 {
		return r.listDeposits(ctx, `SELECT `+depositColumns+` FROM deposits ORDER BY created_at DESC, id DESC`)
	}

	return r.listDeposits(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE state = ANY($1) ORDER BY created_at DESC, id DESC`,
		pq.Array(stateArgs(states)),
	)
}

func (r reader) listDeposits(ctx context.Context, query string, args ...any) ([]*deposits.Deposit, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	result := make([]*deposits.Deposit, 0)

	for rows.Next() {
		dbDeposit := new(dbmodels.Deposit)

		if err := scanDeposit(rows, dbDeposit); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		result = append(result, toDeposit(dbDeposit))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func (r reader) ListWithdrawalsByUser(ctx context.Context, userID string, limit int) ([]*withdrawals.Withdrawal, error) {
	return r.listWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limitArg(limit),
	)
}

func (r reader) ListWithdrawalsByState(ctx context.Context, states ...requests.State) ([]*withdrawals.Withdrawal, error) {
	if len(states) == 0 {
		return r.listWithdrawals(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals ORDER BY created_at DESC, id DESC`)
	}

	return r.listWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE state = ANY($1) ORDER BY created_at DESC, id DESC`,
		pq.Array(stateArgs(states)),
	)
}

func (r reader) listWithdrawals(ctx context.Context, query string, args ...any) ([]*withdrawals.Withdrawal, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	result := make([]*withdrawals.Withdrawal, 0)

	for rows.Next() {
		dbWithdrawal := new(dbmodels.Withdrawal)

		if err := scanWithdrawal(rows, dbWithdrawal); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		result = append(result, toWithdrawal(dbWithdrawal))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func (r reader) ListPositionsByUser(ctx context.Context, userID string, limit int) ([]*investments.Position, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM investment_positions WHERE user_id = $1`+
			` ORDER BY purchase_date DESC, id DESC LIMIT $2`,
		userID, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	result := make([]*investments.Position, 0)

	for rows.Next() {
		dbPosition := new(dbmodels.Position)

		if err := rows.Scan(
			&dbPosition.ID, &dbPosition.UserID, &dbPosition.PackageID, &dbPosition.AmountInvested,
			&dbPosition.PurchaseDate, &dbPosition.MaturityDate, &dbPosition.State,
		); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		result = append(result, toPosition(dbPosition))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func (r reader) ListPackages(ctx context.Context, activeOnly bool) ([]*investments.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM investment_packages`

	if activeOnly {
		query += ` WHERE is_active`
	}

	query += ` ORDER BY seq`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	result := make([]*investments.Package, 0)

	for rows.Next() {
		dbPackage := new(dbmodels.Package)

		if err := scanPackage(rows, dbPackage); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		result = append(result, toPackage(dbPackage))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func scanAccount(row scanner, a *dbmodels.Account) error {
	return row.Scan(&a.UserID, &a.Balance, &a.IsAdmin, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt) //nolint:wrapcheck
}

func scanDeposit(row scanner, d *dbmodels.Deposit) error {
	return row.Scan( //nolint:wrapcheck
		&d.ID, &d.UserID, &d.Amount, &d.BonusAmount, &d.ProofReference, &d.Reference, &d.State,
		&d.AdminNotes, &d.ReviewerID, &d.CreatedAt, &d.DecidedAt,
	)
}

func scanWithdrawal(row scanner, w *dbmodels.Withdrawal) error {
	return row.Scan( //nolint:wrapcheck
		&w.ID, &w.UserID, &w.Amount, &w.Method, &w.Destination, &w.BankName, &w.CryptoType, &w.State,
		&w.AdminNotes, &w.ReviewerID, &w.CreatedAt, &w.DecidedAt,
	)
}

func scanPackage(row scanner, p *dbmodels.Package) error {
	return row.Scan( //nolint:wrapcheck
		&p.ID, &p.Name, &p.Description, &p.Price, &p.ReturnsPercentage, &p.DurationMonths,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
}

func scanEvent(row scanner, e *dbmodels.Event) error {
	return row.Scan( //nolint:wrapcheck
		&e.ID, &e.Type, &e.UserID, &e.SubjectID, &e.ActorID, &e.Amount, &e.Balance, &e.CreatedAt, &e.PublishedAt,
	)
}

func toAccount(a *dbmodels.Account) *accounts.Account {
	return &accounts.Account{
		UserID:    a.UserID,
		Balance:   a.Balance,
		IsAdmin:   a.IsAdmin,
		IsActive:  a.IsActive,
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDeposit(d *dbmodels.Deposit) *deposits.Deposit {
	return &deposits.Deposit{
		ID:             d.ID,
		UserID:         d.UserID,
		Amount:         d.Amount,
		BonusAmount:    d.BonusAmount,
		ProofReference: d.ProofReference,
		Reference:      d.Reference,
		State:          requests.State(d.State),
		AdminNotes:     d.AdminNotes,
		ReviewerID:     d.ReviewerID,
		CreatedAt:      d.CreatedAt,
		DecidedAt:      d.DecidedAt.Time,
	}
}

func toWithdrawal(w *dbmodels.Withdrawal) *withdrawals.Withdrawal {
	return &withdrawals.Withdrawal{
		ID:     w.ID,
		UserID: w.UserID,
		Amount: w.Amount,
		Payout: withdrawals.Payout{
			Method:      withdrawals.Method(w.Method),
			Destination: w.Destination,
			BankName:    w.BankName,
			CryptoType:  w.CryptoType,
		},
		State:      requests.State(w.State),
		AdminNotes: w.AdminNotes,
		ReviewerID: w.ReviewerID,
		CreatedAt:  w.CreatedAt,
		DecidedAt:  w.DecidedAt.Time,
	}
}

func toPackage(p *dbmodels.Package) *investments.Package {
	return &investments.Package{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		ReturnsPercentage: p.ReturnsPercentage,
		DurationMonths:    p.DurationMonths,
		IsActive:          p.IsActive,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toPosition(p *dbmodels.Position) *investments.Position {
	return &investments.Position{
		ID:             p.ID,
		UserID:         p.UserID,
		PackageID:      p.PackageID,
		AmountInvested: p.AmountInvested,
		PurchaseDate:   p.PurchaseDate,
		MaturityDate:   p.MaturityDate,
		State:          investments.PositionState(p.State),
	}
}

func toEvent(e *dbmodels.Event) *events.Event {
	return &events.Event{
		ID:          e.ID,
		Type:        events.Type(e.Type),
		UserID:      e.UserID,
		SubjectID:   e.SubjectID,
		ActorID:     e.ActorID,
		Amount:      e.Amount,
		Balance:     e.Balance,
		CreatedAt:   e.CreatedAt,
		PublishedAt: e.PublishedAt.Time,
	}
}
