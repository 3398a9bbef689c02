package extract

import (
	"encoding/json"
	"testing"

	"contractflow/internal/store"
)

func TestConfidence(t *testing.T) {
	amount := 10.0
	cases := []struct {
		name   string
		fields store.ExtractedFields
		want   float64
	}{
		{name: "empty", want: 0.1},
		{name: "subject only", fields: store.ExtractedFields{SubjectMatter: "steel"}, want: 0.28},
		{
			name: "all scalars",
			fields: store.ExtractedFields{
				TotalAmount: &amount, SubjectMatter: "steel",
				SignDate: "2024-01-01", EffectiveDate: "2024-01-02", ExpireDate: "2025-01-01",
			},
			want: 1,
		},
		{
			name: "parties count half each up to two",
			fields: store.ExtractedFields{
				Parties: []store.Party{{PartyName: "A"}, {PartyName: "B"}, {PartyName: "C"}},
			},
			want: 0.28,
		},
		{
			name: "capped at one",
			fields: store.ExtractedFields{
				TotalAmount: &amount, SubjectMatter: "steel",
				SignDate: "2024-01-01", EffectiveDate: "2024-01-02", ExpireDate: "2025-01-01",
				Parties: []store.Party{{PartyName: "A"}, {PartyName: "B"}},
			},
			want: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Confidence(tc.fields); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRawFieldsNormalize(t *testing.T) {
	payload := `{
		"total_amount": "1,250,000.50元",
		"subject_matter": "  warehouse lease ",
		"sign_date": "2024年3月1日",
		"effective_date": "2024-03-15T00:00:00+08:00",
		"expire_date": "sometime next year",
		"parties": [
			{"party_type": "甲方", "party_name": "Acme Ltd", "tax_number": "91310000", "address": null},
			{"party_type": "乙方", "party_name": "Globex"},
			{"party_type": "乙方", "party_name": null}
		]
	}`
	var raw rawFields
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := raw.normalize()
	if got.TotalAmount == nil || *got.TotalAmount != 1250000.5 {
		t.Fatalf("unexpected amount %v", got.TotalAmount)
	}
	if got.SubjectMatter != "warehouse lease" {
		t.Fatalf("unexpected subject %q", got.SubjectMatter)
	}
	if got.SignDate != "2024-03-01" || got.EffectiveDate != "2024-03-15" {
		t.Fatalf("unexpected dates %q %q", got.SignDate, got.EffectiveDate)
	}
	if got.ExpireDate != "" {
		t.Fatalf("expected unparseable date dropped, got %q", got.ExpireDate)
	}
	if len(got.Parties) != 2 {
		t.Fatalf("expected nameless party dropped, got %#v", got.Parties)
	}
	if got.Parties[0].PartyType != PartyA || got.Parties[0].TaxNumber != "91310000" || got.Parties[0].Address != "" {
		t.Fatalf("unexpected first party %#v", got.Parties[0])
	}
	if got.Parties[1].PartyType != PartyB {
		t.Fatalf("unexpected second party %#v", got.Parties[1])
	}
}

func TestAmountAcceptsLooseValues(t *testing.T) {
	cases := map[string]*float64{
		`null`:        nil,
		`42`:          ptr(42),
		`"￥ 3,000"`:   ptr(3000),
		`"unknown"`:   nil,
		`-5`:          nil,
		`{"v": 1}`:    nil,
		`"RMB 12.5"`:  ptr(12.5),
	}
	for input, want := range cases {
		var a amount
		if err := a.UnmarshalJSON([]byte(input)); err != nil {
			t.Fatalf("%s: unexpected error %v", input, err)
		}
		switch {
		case want == nil && a.value != nil:
			t.Fatalf("%s: expected absent, got %v", input, *a.value)
		case want != nil && (a.value == nil || *a.value != *want):
			t.Fatalf("%s: expected %v, got %v", input, *want, a.value)
		}
	}
}

func TestPartyType(t *testing.T) {
	cases := map[string]string{
		"":         PartyA,
		"甲方":       PartyA,
		"Party A":  PartyA,
		"party_a":  PartyA,
		"乙方":       PartyB,
		"supplier": PartyB,
	}
	for label, want := range cases {
		if got := partyType(label); got != want {
			t.Fatalf("%q: expected %s, got %s", label, want, got)
		}
	}
}

func ptr(v float64) *float64 { return &v }
