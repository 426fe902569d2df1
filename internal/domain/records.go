package domain

import "github.com/shopspring/decimal"

// TransactionType tells whether money came in or went out.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Transaction is a single dated money movement inside a unit.
// BudgetID, GoalID and ReceiptImage are empty when absent.
type Transaction struct {
	ID           string          `json:"id"`
	Date         Timestamp       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Label        string          `json:"label"`
	Type         TransactionType `json:"type"`
	Category     string          `json:"category"`
	BudgetID     string          `json:"budgetId,omitempty"`
	GoalID       string          `json:"goalId,omitempty"`
	ReceiptImage string          `json:"receiptImage,omitempty"`
}

// Budget is a spending envelope that resets on ResetDate.
type Budget struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Limit        decimal.Decimal `json:"limit"`
	CurrentSpent decimal.Decimal `json:"currentSpent"`
	Type         string          `json:"type"`
	Category     string          `json:"category"`
	ResetDate    Timestamp       `json:"resetDate"`
}

// Goal is a savings target.
type Goal struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Target       decimal.Decimal `json:"target"`
	CurrentSaved decimal.Decimal `json:"currentSaved"`
	TargetDate   Timestamp       `json:"targetDate"`
}

// RecurringTransaction is a scheduled transaction template.
type RecurringTransaction struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Frequency   string          `json:"frequency"`
	NextDueDate Timestamp       `json:"nextDueDate"`
	BudgetID    string          `json:"budgetId,omitempty"`
	Type        TransactionType `json:"type"`
}

// Debt is money owed to or by a person. Installments belong to the debt and have
// no identity outside of it.
type Debt struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Person       string          `json:"person"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	PaidAmount   decimal.Decimal `json:"paidAmount"`
	Status       string          `json:"status"`
	DueDate      Timestamp       `json:"dueDate"`
	Installments []Installment   `json:"installments"`
}

// Installment is one scheduled repayment of a debt.
type Installment struct {
	ID     string          `json:"id"`
	Date   Timestamp       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	IsPaid bool            `json:"isPaid"`
}

// SubCategory splits a category into a planned allocation.
type SubCategory struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PlannedAmount decimal.Decimal `json:"plannedAmount"`
	CategoryID    string          `json:"categoryId"`
}
