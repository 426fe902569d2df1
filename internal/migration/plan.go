package migration

import (
	"errors"
	"fmt"

	"github.com/dvloznov/finance-migrator/internal/domain"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Group names one step of the per-unit plan.
type Group string

const (
	GroupUnit                  Group = "unit"
	GroupTransactions          Group = "transactions"
	GroupBudgets               Group = "budgets"
	GroupGoals                 Group = "goals"
	GroupRecurringTransactions Group = "recurring-transactions"
	GroupDebts                 Group = "debts"
	GroupInstallments          Group = "installments"
	GroupSubCategories         Group = "sub-categories"
	GroupProfile               Group = "profile"
)

// Scope is what a step sees when it builds its records for one unit.
type Scope struct {
	CallerID string
	Unit     domain.UnitMeta
	Bundle   *domain.FinancialBundle // never nil; empty when the unit has no data
}

// Batch is one upsert call. Dependent batches belong to the single record of
// the step's dependency named by ParentID; they are only attempted if that
// record was written.
type Batch struct {
	Owner     remote.Owner
	Dependent bool
	ParentID  string
	Records   []remote.Record
}

// Step is one entry of the ordered per-unit plan.
type Step struct {
	Group      Group
	DependsOn  Group
	Collection remote.Collection
	// Label is the entity kind shown in progress messages. The root step has none.
	Label   string
	Batches func(s Scope) []Batch
}

// Plan is the ordered list of steps applied to every unit. The first step is the
// root: if it fails the remaining steps are skipped for that unit.
type Plan []Step

// ErrInvalidPlan is returned by Plan.Validate.
var ErrInvalidPlan = errors.New("invalid migration plan")

// Validate checks that the plan is well formed: a single root step first, unique
// groups, known collections, and every dependency declared by an earlier step.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}

	seen := make(map[Group]bool, len(p))
	for i, s := range p {
		switch {
		case s.Group == "":
			return fmt.Errorf("%w: step %d has no group", ErrInvalidPlan, i)
		case seen[s.Group]:
			return fmt.Errorf("%w: group %q declared twice", ErrInvalidPlan, s.Group)
		case !s.Collection.Valid():
			return fmt.Errorf("%w: group %q uses unknown collection %q", ErrInvalidPlan, s.Group, s.Collection)
		case s.Batches == nil:
			return fmt.Errorf("%w: group %q has no batch builder", ErrInvalidPlan, s.Group)
		}

		if i == 0 {
			if s.DependsOn != "" {
				return fmt.Errorf("%w: root group %q cannot depend on %q", ErrInvalidPlan, s.Group, s.DependsOn)
			}
		} else {
			if s.DependsOn == "" {
				return fmt.Errorf("%w: group %q has no dependency", ErrInvalidPlan, s.Group)
			}
			if !seen[s.DependsOn] {
				return fmt.Errorf("%w: group %q depends on %q which does not run before it", ErrInvalidPlan, s.Group, s.DependsOn)
			}
			if s.Label == "" {
				return fmt.Errorf("%w: group %q has no label", ErrInvalidPlan, s.Group)
			}
		}
		seen[s.Group] = true
	}
	return nil
}

// Root returns the first step.
func (p Plan) Root() Step {
	return p[0]
}

// Index returns the position of group g, or -1.
func (p Plan) Index(g Group) int {
	for i, s := range p {
		if s.Group == g {
			return i
		}
	}
	return -1
}

// DefaultPlan is the order in which a unit's data is written: the unit, then
// each entity group, with installments after (and per) their debt.
func DefaultPlan() Plan {
	return Plan{
		{Group: GroupUnit, Collection: remote.CollectionUnits, Batches: unitBatches},
		{Group: GroupTransactions, DependsOn: GroupUnit, Collection: remote.CollectionTransactions, Label: "transactions", Batches: transactionBatches},
		{Group: GroupBudgets, DependsOn: GroupUnit, Collection: remote.CollectionBudgets, Label: "budgets", Batches: budgetBatches},
		{Group: GroupGoals, DependsOn: GroupUnit, Collection: remote.CollectionGoals, Label: "goals", Batches: goalBatches},
		{Group: GroupRecurringTransactions, DependsOn: GroupUnit, Collection: remote.CollectionRecurringTransactions, Label: "recurring transactions", Batches: recurringBatches},
		{Group: GroupDebts, DependsOn: GroupUnit, Collection: remote.CollectionDebts, Label: "debts", Batches: debtBatches},
		{Group: GroupInstallments, DependsOn: GroupDebts, Collection: remote.CollectionInstallments, Label: "installments", Batches: installmentBatches},
		{Group: GroupSubCategories, DependsOn: GroupUnit, Collection: remote.CollectionSubCategories, Label: "sub-categories", Batches: subCategoryBatches},
	}
}
