// Package accounts holds the cash/bank account models shared by the
// settlement and payables flows. Balance mutations always happen inside the
// caller's transaction, guarded by the account version, and every mutation
// leaves an AccountTransaction row with the before/after balances.
package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a balance movement.
type TransactionType string

const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
)

// RelatedType names the business document that caused a movement.
type RelatedType string

const (
	RelatedReceiptBill RelatedType = "RECEIPT_BILL"
	RelatedPaymentBill RelatedType = "PAYMENT_BILL"
)

// Account is a company cash or bank account. Version guards concurrent
// balance updates.
type Account struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	AccountNo string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is one immutable balance movement on an account.
type Transaction struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	AccountID     uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	RelatedType   RelatedType
	RelatedID     uuid.UUID
	Description   string
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

// NewIncome builds the transaction row for a credit to an account.
func NewIncome(account Account, amount decimal.Decimal, related RelatedType, relatedID, createdBy uuid.UUID, description string, at time.Time) Transaction {
	return Transaction{
		ID:            uuid.New(),
		TenantID:      account.TenantID,
		AccountID:     account.ID,
		Type:          TypeIncome,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance.Add(amount),
		RelatedType:   related,
		RelatedID:     relatedID,
		Description:   description,
		CreatedBy:     createdBy,
		CreatedAt:     at,
	}
}

// NewExpense builds the transaction row for a debit from an account.
func NewExpense(account Account, amount decimal.Decimal, related RelatedType, relatedID, createdBy uuid.UUID, description string, at time.Time) Transaction {
	return Transaction{
		ID:            uuid.New(),
		TenantID:      account.TenantID,
		AccountID:     account.ID,
		Type:          TypeExpense,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance.Sub(amount),
		RelatedType:   related,
		RelatedID:     relatedID,
		Description:   description,
		CreatedBy:     createdBy,
		CreatedAt:     at,
	}
}
