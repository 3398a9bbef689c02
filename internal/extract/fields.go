package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"contractflow/internal/store"
)

// scoredFields are the scalar fields counted by Confidence.
const scoredFields = 5

// Party types recorded on extracted parties.
const (
	PartyA = "party_a"
	PartyB = "party_b"
)

// Confidence scores how complete fields is. Each scalar field found counts
// one, each party a half up to two parties; the sum over five maps linearly
// onto [0.1, 1.0] and is rounded to two decimals.
func Confidence(fields store.ExtractedFields) float64 {
	found := 0.0
	if fields.TotalAmount != nil {
		found++
	}
	for _, value := range []string{fields.SubjectMatter, fields.SignDate, fields.EffectiveDate, fields.ExpireDate} {
		if strings.TrimSpace(value) != "" {
			found++
		}
	}
	found += 0.5 * float64(min(len(fields.Parties), 2))

	score := found/scoredFields*0.9 + 0.1
	score = math.Min(score, 1)
	return math.Round(score*100) / 100
}

// rawFields mirrors the JSON the model is asked to produce. Every value may
// be null or loosely typed.
type rawFields struct {
	TotalAmount   amount     `json:"total_amount"`
	SubjectMatter *string    `json:"subject_matter"`
	SignDate      *string    `json:"sign_date"`
	EffectiveDate *string    `json:"effective_date"`
	ExpireDate    *string    `json:"expire_date"`
	Parties       []rawParty `json:"parties"`
}

type rawParty struct {
	PartyType           *string `json:"party_type"`
	PartyName           *string `json:"party_name"`
	TaxNumber           *string `json:"tax_number"`
	LegalRepresentative *string `json:"legal_representative"`
	Address             *string `json:"address"`
}

func (r rawFields) normalize() store.ExtractedFields {
	out := store.ExtractedFields{
		TotalAmount:   r.TotalAmount.value,
		SubjectMatter: str(r.SubjectMatter),
		SignDate:      isoDate(str(r.SignDate)),
		EffectiveDate: isoDate(str(r.EffectiveDate)),
		ExpireDate:    isoDate(str(r.ExpireDate)),
	}
	for _, p := range r.Parties {
		name := str(p.PartyName)
		if name == "" {
			continue
		}
		out.Parties = append(out.Parties, store.Party{
			PartyType:           partyType(str(p.PartyType)),
			PartyName:           name,
			TaxNumber:           str(p.TaxNumber),
			LegalRepresentative: str(p.LegalRepresentative),
			Address:             str(p.Address),
		})
	}
	return out
}

func str(value *string) string {
	if value == nil {
		return ""
	}
	trimmed := strings.TrimSpace(*value)
	if strings.EqualFold(trimmed, "null") {
		return ""
	}
	return trimmed
}

// partyType maps 甲方 (and anything else naming party A) to PartyA and every
// other label to PartyB. An empty label is party A.
func partyType(label string) string {
	lower := strings.ToLower(label)
	switch {
	case label == "", strings.Contains(label, "甲"), lower == "a", strings.Contains(lower, "party_a"), strings.Contains(lower, "party a"):
		return PartyA
	default:
		return PartyB
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006年1月2日",
	"2006.01.02",
}

// isoDate rewrites value as YYYY-MM-DD. Values that are not recognisable dates
// are dropped.
func isoDate(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// amount accepts a JSON number, a numeric string with currency decoration, or
// null. Anything unparseable decodes as absent.
type amount struct {
	value *float64
}

var amountNoise = strings.NewReplacer(",", "", "，", "", " ", "", "元", "", "¥", "", "￥", "", "RMB", "", "CNY", "")

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.value = nil
		return nil
	}
	var text string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = amountNoise.Replace(strings.TrimSpace(text))
	} else {
		text = string(data)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		a.value = nil
		return nil
	}
	a.value = &v
	return nil
}
