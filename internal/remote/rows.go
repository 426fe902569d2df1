package remote

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row destined for a remote collection.
type Record interface {
	// RecordID returns the primary key.
	RecordID() string
	// Fields returns the column values in a stable order, primary key first.
	// Values are one of: string, *string, bool, decimal.Decimal, time.Time, *time.Time.
	Fields() []Field
}

// Field is a single column value.
type Field struct {
	Name  string
	Value any
}

// Column names shared by several collections.
const (
	ColumnID     = "id"
	ColumnUserID = "user_id"
	ColumnUnitID = "unit_id"
	ColumnDebtID = "debt_id"
)

// OptionalString returns nil for an empty string.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UnitRow represents a unit (a financial workspace) owned by a user.
type UnitRow struct {
	ID        string
	UserID    string
	Name      string
	Status    string
	CreatedAt *time.Time
}

func (r *UnitRow) RecordID() string { return r.ID }

func (r *UnitRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{"name", r.Name},
		{"status", r.Status},
		{"created_at", r.CreatedAt},
	}
}

// TransactionRow represents a transaction record.
type TransactionRow struct {
	ID           string
	UserID       string
	UnitID       string
	Date         *time.Time
	Amount       decimal.Decimal
	Label        string
	Type         string
	Category     string
	BudgetID     *string
	GoalID       *string
	ReceiptImage *string
}

func (r *TransactionRow) RecordID() string { return r.ID }

func (r *TransactionRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{ColumnUnitID, r.UnitID},
		{"date", r.Date},
		{"amount", r.Amount},
		{"label", r.Label},
		{"type", r.Type},
		{"category", r.Category},
		{"budget_id", r.BudgetID},
		{"goal_id", r.GoalID},
		{"receipt_image", r.ReceiptImage},
	}
}

// BudgetRow represents a budget envelope.
type BudgetRow struct {
	ID           string
	UserID       string
	UnitID       string
	Name         string
	Limit        decimal.Decimal
	CurrentSpent decimal.Decimal
	Type         string
	Category     string
	ResetDate    *time.Time
}

func (r *BudgetRow) RecordID() string { return r.ID }

func (r *BudgetRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{ColumnUnitID, r.UnitID},
		{"name", r.Name},
		{"limit_amount", r.Limit},
		{"current_spent", r.CurrentSpent},
		{"type", r.Type},
		{"category", r.Category},
		{"reset_date", r.ResetDate},
	}
}

// GoalRow represents a savings goal.
type GoalRow struct {
	ID           string
	UserID       string
	UnitID       string
	Name         string
	Target       decimal.Decimal
	CurrentSaved decimal.Decimal
	TargetDate   *time.Time
}

func (r *GoalRow) RecordID() string { return r.ID }

func (r *GoalRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{ColumnUnitID, r.UnitID},
		{"name", r.Name},
		{"target", r.Target},
		{"current_saved", r.CurrentSaved},
		{"target_date", r.TargetDate},
	}
}

// RecurringTransactionRow represents a recurring transaction template.
type RecurringTransactionRow struct {
	ID          string
	UserID      string
	UnitID      string
	Label       string
	Amount      decimal.Decimal
	Category    string
	Frequency   string
	NextDueDate *time.Time
	BudgetID    *string
	Type        string
}

func (r *RecurringTransactionRow) RecordID() string { return r.ID }

func (r *RecurringTransactionRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{ColumnUnitID, r.UnitID},
		{"label", r.Label},
		{"amount", r.Amount},
		{"category", r.Category},
		{"frequency", r.Frequency},
		{"next_due_date", r.NextDueDate},
		{"budget_id", r.BudgetID},
		{"type", r.Type},
	}
}

// DebtRow represents a debt. Its installments are written separately.
type DebtRow struct {
	ID          string
	UserID      string
	UnitID      string
	Type        string
	Person      string
	TotalAmount decimal.Decimal
	PaidAmount  decimal.Decimal
	Status      string
	DueDate     *time.Time
}

func (r *DebtRow) RecordID() string { return r.ID }

func (r *DebtRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{ColumnUnitID, r.UnitID},
		{"type", r.Type},
		{"person", r.Person},
		{"total_amount", r.TotalAmount},
		{"paid_amount", r.PaidAmount},
		{"status", r.Status},
		{"due_date", r.DueDate},
	}
}

// InstallmentRow represents one repayment of a debt. It carries only the debt key.
type InstallmentRow struct {
	ID     string
	DebtID string
	Date   *time.Time
	Amount decimal.Decimal
	IsPaid bool
}

func (r *InstallmentRow) RecordID() string { return r.ID }

func (r *InstallmentRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnDebtID, r.DebtID},
		{"date", r.Date},
		{"amount", r.Amount},
		{"is_paid", r.IsPaid},
	}
}

// SubCategoryRow represents a planned allocation under a category.
type SubCategoryRow struct {
	ID            string
	UserID        string
	UnitID        string
	Name          string
	PlannedAmount decimal.Decimal
	CategoryID    string
}

func (r *SubCategoryRow) RecordID() string { return r.ID }

func (r *SubCategoryRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{ColumnUserID, r.UserID},
		{ColumnUnitID, r.UnitID},
		{"name", r.Name},
		{"planned_amount", r.PlannedAmount},
		{"category_id", r.CategoryID},
	}
}

// UserProfileRow is the single aggregate profile of a user, keyed by the user id.
type UserProfileRow struct {
	ID          string
	DisplayName string
	Avatar      string
	AIPersona   string
	PrivacyMode bool
	UpdatedAt   time.Time
}

func (r *UserProfileRow) RecordID() string { return r.ID }

func (r *UserProfileRow) Fields() []Field {
	return []Field{
		{ColumnID, r.ID},
		{"display_name", r.DisplayName},
		{"avatar", r.Avatar},
		{"ai_persona", r.AIPersona},
		{"privacy_mode", r.PrivacyMode},
		{"updated_at", r.UpdatedAt},
	}
}

// NewRow returns an empty row of the type stored in collection, or nil for an
// unknown collection. Backends use it to derive schemas.
func NewRow(c Collection) Record {
	switch c {
	case CollectionUnits:
		return &UnitRow{}
	case CollectionTransactions:
		return &TransactionRow{}
	case CollectionBudgets:
		return &BudgetRow{}
	case CollectionGoals:
		return &GoalRow{}
	case CollectionRecurringTransactions:
		return &RecurringTransactionRow{}
	case CollectionDebts:
		return &DebtRow{}
	case CollectionInstallments:
		return &InstallmentRow{}
	case CollectionSubCategories:
		return &SubCategoryRow{}
	case CollectionUserProfiles:
		return &UserProfileRow{}
	}
	return nil
}
