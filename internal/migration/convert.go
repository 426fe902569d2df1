package migration

import (
	"github.com/dvloznov/finance-migrator/internal/remote"
)

func unitOwner(s Scope) remote.Owner {
	return remote.Owner{UserID: s.CallerID, UnitID: s.Unit.ID}
}

// single wraps records into one batch, or none when there is nothing to write.
func single(owner remote.Owner, records []remote.Record) []Batch {
	if len(records) == 0 {
		return nil
	}
	return []Batch{{Owner: owner, Records: records}}
}

func unitBatches(s Scope) []Batch {
	row := &remote.UnitRow{
		ID:        s.Unit.ID,
		UserID:    s.CallerID,
		Name:      s.Unit.Name,
		Status:    string(s.Unit.Status),
		CreatedAt: s.Unit.CreatedAt.Ptr(),
	}
	return []Batch{{Owner: remote.Owner{UserID: s.CallerID}, Records: []remote.Record{row}}}
}

func transactionBatches(s Scope) []Batch {
	records := make([]remote.Record, 0, len(s.Bundle.Transactions))
	for _, t := range s.Bundle.Transactions {
		records = append(records, &remote.TransactionRow{
			ID:           t.ID,
			UserID:       s.CallerID,
			UnitID:       s.Unit.ID,
			Date:         t.Date.Ptr(),
			Amount:       t.Amount,
			Label:        t.Label,
			Type:         string(t.Type),
			Category:     t.Category,
			BudgetID:     remote.OptionalString(t.BudgetID),
			GoalID:       remote.OptionalString(t.GoalID),
			ReceiptImage: remote.OptionalString(t.ReceiptImage),
		})
	}
	return single(unitOwner(s), records)
}

func budgetBatches(s Scope) []Batch {
	records := make([]remote.Record, 0, len(s.Bundle.Budgets))
	for _, b := range s.Bundle.Budgets {
		records = append(records, &remote.BudgetRow{
			ID:           b.ID,
			UserID:       s.CallerID,
			UnitID:       s.Unit.ID,
			Name:         b.Name,
			Limit:        b.Limit,
			CurrentSpent: b.CurrentSpent,
			Type:         b.Type,
			Category:     b.Category,
			ResetDate:    b.ResetDate.Ptr(),
		})
	}
	return single(unitOwner(s), records)
}

func goalBatches(s Scope) []Batch {
	records := make([]remote.Record, 0, len(s.Bundle.Goals))
	for _, g := range s.Bundle.Goals {
		records = append(records, &remote.GoalRow{
			ID:           g.ID,
			UserID:       s.CallerID,
			UnitID:       s.Unit.ID,
			Name:         g.Name,
			Target:       g.Target,
			CurrentSaved: g.CurrentSaved,
			TargetDate:   g.TargetDate.Ptr(),
		})
	}
	return single(unitOwner(s), records)
}

func recurringBatches(s Scope) []Batch {
	records := make([]remote.Record, 0, len(s.Bundle.RecurringTransactions))
	for _, r := range s.Bundle.RecurringTransactions {
		records = append(records, &remote.RecurringTransactionRow{
			ID:          r.ID,
			UserID:      s.CallerID,
			UnitID:      s.Unit.ID,
			Label:       r.Label,
			Amount:      r.Amount,
			Category:    r.Category,
			Frequency:   r.Frequency,
			NextDueDate: r.NextDueDate.Ptr(),
			BudgetID:    remote.OptionalString(r.BudgetID),
			Type:        string(r.Type),
		})
	}
	return single(unitOwner(s), records)
}

func debtBatches(s Scope) []Batch {
	records := make([]remote.Record, 0, len(s.Bundle.Debts))
	for _, d := range s.Bundle.Debts {
		records = append(records, &remote.DebtRow{
			ID:          d.ID,
			UserID:      s.CallerID,
			UnitID:      s.Unit.ID,
			Type:        d.Type,
			Person:      d.Person,
			TotalAmount: d.TotalAmount,
			PaidAmount:  d.PaidAmount,
			Status:      d.Status,
			DueDate:     d.DueDate.Ptr(),
		})
	}
	return single(unitOwner(s), records)
}

// installmentBatches yields one batch per debt that has installments. Only debts
// present in the bundle are visited, so orphan installments never exist here.
func installmentBatches(s Scope) []Batch {
	var batches []Batch
	for _, d := range s.Bundle.Debts {
		if len(d.Installments) == 0 {
			continue
		}
		records := make([]remote.Record, 0, len(d.Installments))
		for _, inst := range d.Installments {
			records = append(records, &remote.InstallmentRow{
				ID:     inst.ID,
				DebtID: d.ID,
				Date:   inst.Date.Ptr(),
				Amount: inst.Amount,
				IsPaid: inst.IsPaid,
			})
		}
		batches = append(batches, Batch{
			Owner:     remote.Owner{DebtID: d.ID},
			Dependent: true,
			ParentID:  d.ID,
			Records:   records,
		})
	}
	return batches
}

func subCategoryBatches(s Scope) []Batch {
	records := make([]remote.Record, 0, len(s.Bundle.SubCategories))
	for _, sc := range s.Bundle.SubCategories {
		records = append(records, &remote.SubCategoryRow{
			ID:            sc.ID,
			UserID:        s.CallerID,
			UnitID:        s.Unit.ID,
			Name:          sc.Name,
			PlannedAmount: sc.PlannedAmount,
			CategoryID:    sc.CategoryID,
		})
	}
	return single(unitOwner(s), records)
}
