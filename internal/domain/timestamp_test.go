package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "RFC3339 with millis",
			input: `"2024-03-05T10:15:30.250Z"`,
			want:  time.Date(2024, 3, 5, 10, 15, 30, 250_000_000, time.UTC),
		},
		{
			name:  "plain date",
			input: `"2024-03-05"`,
			want:  time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "epoch milliseconds",
			input: `1709633730000`,
			want:  time.UnixMilli(1709633730000).UTC(),
		},
		{
			name:  "null is absent",
			input: `null`,
		},
		{
			name:  "empty string is absent",
			input: `""`,
		},
		{
			name:    "garbage string",
			input:   `"next tuesday"`,
			wantErr: true,
		},
		{
			name:    "boolean",
			input:   `true`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.input), &ts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !ts.Time.Equal(tt.want) {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, ts.Time, tt.want)
			}
		})
	}
}

func TestTimestamp_Ptr(t *testing.T) {
	if (Timestamp{}).Ptr() != nil {
		t.Error("expected nil pointer for zero timestamp")
	}

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewTimestamp(now).Ptr()
	if p == nil || !p.Equal(now) {
		t.Errorf("Ptr() = %v, want %v", p, now)
	}
}

func TestSnapshot_ActiveBundle(t *testing.T) {
	bundle := &FinancialBundle{UserName: "Alex"}
	snap := &Snapshot{
		Units:        []UnitMeta{{ID: "u1"}},
		Bundles:      map[string]*FinancialBundle{"u1": bundle},
		ActiveUnitID: "u1",
	}

	if got := snap.ActiveBundle(); got != bundle {
		t.Errorf("ActiveBundle() = %v, want %v", got, bundle)
	}

	snap.ActiveUnitID = "missing"
	if got := snap.ActiveBundle(); got != nil {
		t.Errorf("ActiveBundle() with unknown id = %v, want nil", got)
	}

	var nilSnap *Snapshot
	if nilSnap.ActiveBundle() != nil {
		t.Error("ActiveBundle() on nil snapshot should be nil")
	}
}

func TestFinancialBundle_InstallmentCount(t *testing.T) {
	b := &FinancialBundle{
		Debts: []Debt{
			{ID: "d1", Installments: []Installment{{ID: "i1"}, {ID: "i2"}}},
			{ID: "d2"},
			{ID: "d3", Installments: []Installment{{ID: "i3"}}},
		},
	}
	if got := b.InstallmentCount(); got != 3 {
		t.Errorf("InstallmentCount() = %d, want 3", got)
	}
}
