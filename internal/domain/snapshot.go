package domain

// Snapshot is the locally persisted application state a caller accumulated before
// signing in. Its JSON shape is owned by the mobile client and must stay
// compatible with what the client writes.
type Snapshot struct {
	Units        []UnitMeta                  `json:"units"`
	Bundles      map[string]*FinancialBundle `json:"financialDataByUnit"`
	ActiveUnitID string                      `json:"activeConversationId"`
}

// UnitStatus is the lifecycle state of a unit as recorded by the client.
type UnitStatus string

const (
	UnitStatusActive   UnitStatus = "active"
	UnitStatusArchived UnitStatus = "archived"
)

// UnitMeta describes one self-contained financial workspace (a household budget,
// a trip, ...). The client UI calls these conversations.
type UnitMeta struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    UnitStatus `json:"status"`
	CreatedAt Timestamp  `json:"createdAt"`
}

// FinancialBundle holds every entity group belonging to one unit, plus the loose
// profile attributes the client stores next to them.
type FinancialBundle struct {
	Transactions          []Transaction          `json:"transactions"`
	Budgets               []Budget               `json:"budgets"`
	Goals                 []Goal                 `json:"goals"`
	RecurringTransactions []RecurringTransaction `json:"recurringTransactions"`
	Debts                 []Debt                 `json:"debts"`
	SubCategories         []SubCategory          `json:"subCategories"`

	UserName    string `json:"userName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	AIPersona   string `json:"aiPersona,omitempty"`
	PrivacyMode bool   `json:"privacyMode,omitempty"`
}

// Bundle returns the bundle for unitID, or nil when the snapshot has none.
func (s *Snapshot) Bundle(unitID string) *FinancialBundle {
	if s == nil || s.Bundles == nil {
		return nil
	}
	return s.Bundles[unitID]
}

// ActiveBundle returns the bundle of the most recently used unit, or nil.
func (s *Snapshot) ActiveBundle() *FinancialBundle {
	if s == nil || s.ActiveUnitID == "" {
		return nil
	}
	return s.Bundle(s.ActiveUnitID)
}

// InstallmentCount returns the number of installments across all debts.
func (b *FinancialBundle) InstallmentCount() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, d := range b.Debts {
		n += len(d.Installments)
	}
	return n
}
