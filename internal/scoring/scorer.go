// Package scoring aggregates signals into ranked category candidates and
// calibrates the resulting confidences. Everything here is pure and
// synchronous.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/Veraticus/saffron/internal/model"
)

// Rationale lines for the degenerate cases.
const (
	RationaleNoSignals      = "No categorization signals found"
	RationaleBelowThreshold = "No candidate category met the minimum score thresholds"
)

// Params are the tunable constants of the scorer. The bonuses and blend
// factors are empirically tuned and should be recalibrated against labeled
// data rather than treated as invariants.
type Params struct {
	// Weights override Signal.Weight when the signal carries none.
	Weights map[model.SignalType]float64

	MCCVendorBonus     float64
	VendorKeywordBonus float64
	MCCKeywordBonus    float64
	ThreeTypesBonus    float64

	CountBonusStep float64
	CountBonusMax  float64

	MaxBlend  float64
	MeanBlend float64

	// DiversityFactor scales totalScore by distinct signal types.
	DiversityFactor float64

	MinTotalScore   float64
	MinConfidence   float64
	CompetingMargin float64
}

// DefaultParams returns the production scorer constants.
func DefaultParams() Params {
	weights := make(map[model.SignalType]float64, len(model.AllSignalTypes))
	for _, t := range model.AllSignalTypes {
		weights[t] = model.DefaultWeight(t)
	}
	return Params{
		Weights:            weights,
		MCCVendorBonus:     0.12,
		VendorKeywordBonus: 0.10,
		MCCKeywordBonus:    0.08,
		ThreeTypesBonus:    0.05,
		CountBonusStep:     0.05,
		CountBonusMax:      0.15,
		MaxBlend:           0.7,
		MeanBlend:          0.3,
		DiversityFactor:    0.25,
		MinTotalScore:      0.5,
		MinConfidence:      0.1,
		CompetingMargin:    0.2,
	}
}

// Scorer ranks candidate categories from a bag of signals.
type Scorer struct {
	params Params
}

// NewScorer creates a scorer with the given parameters.
func NewScorer(params Params) *Scorer {
	return &Scorer{params: params}
}

// Score groups signals by category, computes each category's blended
// confidence and evidence score, drops near-noise candidates and ranks the
// rest by totalScore. Empty input yields no best category.
func (s *Scorer) Score(signals []model.Signal) model.ScoringResult {
	if len(signals) == 0 {
		return model.ScoringResult{Rationale: []string{RationaleNoSignals}}
	}

	groups := make(map[string][]model.Signal)
	var order []string
	for _, sig := range signals {
		if _, ok := groups[sig.CategoryID]; !ok {
			order = append(order, sig.CategoryID)
		}
		groups[sig.CategoryID] = append(groups[sig.CategoryID], sig)
	}

	candidates := make([]model.CategoryScore, 0, len(order))
	for _, id := range order {
		score := s.scoreCategory(groups[id])
		if score.TotalScore < s.params.MinTotalScore || score.Confidence < s.params.MinConfidence {
			continue
		}
		candidates = append(candidates, score)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].TotalScore != candidates[j].TotalScore {
			return candidates[i].TotalScore > candidates[j].TotalScore
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})

	if len(candidates) == 0 {
		return model.ScoringResult{Rationale: []string{RationaleBelowThreshold}}
	}

	best := candidates[0]
	return model.ScoringResult{
		BestCategory:  &best,
		AllCandidates: candidates,
		Rationale:     s.rationale(candidates),
	}
}

// ScoreCategory aggregates signals that all point at one category, without
// applying the minimum thresholds.
func (s *Scorer) ScoreCategory(signals []model.Signal) model.CategoryScore {
	return s.scoreCategory(signals)
}

func (s *Scorer) scoreCategory(signals []model.Signal) model.CategoryScore {
	var sumWeighted, sumWeight, maxConf float64
	dominant := signals[0]
	types := make(map[model.SignalType]bool, len(signals))

	for _, sig := range signals {
		w := s.weight(sig)
		sumWeighted += sig.Confidence * w
		sumWeight += w
		if sig.Confidence > maxConf {
			maxConf = sig.Confidence
		}
		if sig.Confidence > dominant.Confidence ||
			(sig.Confidence == dominant.Confidence && w > s.weight(dominant)) {
			dominant = sig
		}
		types[sig.Type] = true
	}

	normalized := 0.0
	if sumWeight > 0 {
		normalized = sumWeighted / sumWeight
	}

	compound := s.CompoundBonus(types)
	count := s.CountBonus(len(signals))

	confidence := math.Min(model.MaxConfidence,
		maxConf*s.params.MaxBlend+normalized*s.params.MeanBlend+count+compound)

	diversity := 1 + s.params.DiversityFactor*float64(len(types)-1)
	total := normalized*diversity + compound + count

	out := make([]model.Signal, len(signals))
	copy(out, signals)

	return model.CategoryScore{
		CategoryID:     dominant.CategoryID,
		CategoryName:   dominant.CategoryName,
		TotalScore:     total,
		Confidence:     confidence,
		Signals:        out,
		DominantSignal: dominant,
	}
}

// CompoundBonus returns the bonus for independently corroborating signal
// types.
func (s *Scorer) CompoundBonus(types map[model.SignalType]bool) float64 {
	bonus := 0.0
	if types[model.SignalMCC] && types[model.SignalVendor] {
		bonus += s.params.MCCVendorBonus
	}
	if types[model.SignalVendor] && types[model.SignalKeyword] {
		bonus += s.params.VendorKeywordBonus
	}
	if types[model.SignalMCC] && types[model.SignalKeyword] {
		bonus += s.params.MCCKeywordBonus
	}
	if len(types) >= 3 {
		bonus += s.params.ThreeTypesBonus
	}
	return bonus
}

// CountBonus returns min(CountBonusMax, (n-1)·CountBonusStep).
func (s *Scorer) CountBonus(n int) float64 {
	if n <= 1 {
		return 0
	}
	return math.Min(s.params.CountBonusMax, float64(n-1)*s.params.CountBonusStep)
}

func (s *Scorer) weight(sig model.Signal) float64 {
	if sig.Weight > 0 {
		return sig.Weight
	}
	return s.params.Weights[sig.Type]
}

func (s *Scorer) rationale(candidates []model.CategoryScore) []string {
	best := candidates[0]
	lines := []string{
		fmt.Sprintf("Best category: %s (confidence %.0f%%)", best.CategoryName, best.Confidence*100),
		fmt.Sprintf("Dominant signal: %s - %s", best.DominantSignal.Type, describe(best.DominantSignal)),
	}

	supporting := make([]model.Signal, 0, len(best.Signals))
	for _, sig := range best.Signals {
		if sig.Type == best.DominantSignal.Type && sig.Metadata.Details == best.DominantSignal.Metadata.Details {
			continue
		}
		supporting = append(supporting, sig)
	}
	sort.SliceStable(supporting, func(i, j int) bool {
		return supporting[i].Confidence > supporting[j].Confidence
	})
	for i, sig := range supporting {
		if i == 2 {
			break
		}
		lines = append(lines, fmt.Sprintf("Supporting signal: %s - %s", sig.Type, describe(sig)))
	}

	if len(candidates) > 1 {
		second := candidates[1]
		if best.TotalScore-second.TotalScore <= s.params.CompetingMargin {
			lines = append(lines, fmt.Sprintf("Competing category: %s (score %.2f vs %.2f)",
				second.CategoryName, second.TotalScore, best.TotalScore))
		}
	}
	return lines
}

func describe(sig model.Signal) string {
	if sig.Metadata.Details != "" {
		return sig.Metadata.Details
	}
	return sig.Metadata.Source
}
