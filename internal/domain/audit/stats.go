package audit

import (
	"github.com/shopspring/decimal"
)

// DuplicateStats summarises a FindDuplicates result.
type DuplicateStats struct {
	TotalRows     int             `json:"total_rows"`
	Groups        int             `json:"num_groups"`
	TotalValue    decimal.Decimal `json:"total_value"`
	UniqueSellers int             `json:"unique_sellers"`
	Skipped       int             `json:"skipped_rows"`
}

func SummarizeDuplicates(groups []DuplicateGroup, skipped int) DuplicateStats {
	st := DuplicateStats{Groups: len(groups), TotalValue: decimal.Zero, Skipped: skipped}
	sellers := make(map[string]struct{})
	for _, g := range groups {
		st.TotalRows += g.Size()
		st.TotalValue = st.TotalValue.Add(g.Total)
		sellers[g.Key.SellerGSTIN] = struct{}{}
	}
	st.UniqueSellers = len(sellers)
	return st
}

// RatioStats summarises a ComputeSellerRatios result.
type RatioStats struct {
	Sellers              int             `json:"total_sellers"`
	AboveHalf            int             `json:"high_ratio"`
	AboveOne             int             `json:"extreme_ratio"`
	UndefinedHigh        int             `json:"undefined_ratio"`
	HighRisk             int             `json:"high_risk"`
	MediumRisk           int             `json:"medium_risk"`
	TotalCreditNoteValue decimal.Decimal `json:"total_crn_val"`
	Skipped              int             `json:"skipped_rows"`
}

func SummarizeRatios(ratios []SellerRatio, skipped int) RatioStats {
	st := RatioStats{Sellers: len(ratios), TotalCreditNoteValue: decimal.Zero, Skipped: skipped}
	for _, s := range ratios {
		if v, ok := s.Ratio.Float(); ok {
			if v > 0.5 {
				st.AboveHalf++
			}
			if v > 1.0 {
				st.AboveOne++
			}
		} else if s.UndefinedHigh() {
			st.UndefinedHigh++
		}
		switch s.Risk {
		case RiskHigh:
			st.HighRisk++
		case RiskMedium:
			st.MediumRisk++
		}
		st.TotalCreditNoteValue = st.TotalCreditNoteValue.Add(s.TotalCreditNoteValue)
	}
	return st
}
