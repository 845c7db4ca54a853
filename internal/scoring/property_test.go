package scoring

import (
	"fmt"
	"testing"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genSignal() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 5),
		gen.IntRange(1, 4),
		gen.IntRange(0, 3),
		gen.Float64Range(0, 1.2),
	).Map(func(v []interface{}) model.Signal {
		t := model.SignalType(v[0].(int))
		category := fmt.Sprintf("cat-%d", v[2].(int))
		return model.NewSignal(t, category, category, model.Strength(v[1].(int)), v[3].(float64),
			model.DefaultWeight(t), model.SignalMetadata{Source: t.String()})
	})
}

func TestScoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	scorer := NewScorer(DefaultParams())

	properties.Property("confidence stays within [0, 0.98]", prop.ForAll(
		func(signals []model.Signal) bool {
			result := scorer.Score(signals)
			for _, c := range result.AllCandidates {
				if c.Confidence < 0 || c.Confidence > model.MaxConfidence {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genSignal()),
	))

	properties.Property("best category is the top ranked candidate", prop.ForAll(
		func(signals []model.Signal) bool {
			result := scorer.Score(signals)
			if result.BestCategory == nil {
				return len(result.AllCandidates) == 0 && len(result.Rationale) == 1
			}
			for i := 1; i < len(result.AllCandidates); i++ {
				if result.AllCandidates[i].TotalScore > result.AllCandidates[i-1].TotalScore {
					return false
				}
			}
			return result.BestCategory.CategoryID == result.AllCandidates[0].CategoryID
		},
		gen.SliceOf(genSignal()),
	))

	properties.Property("a corroborating signal of a new type never lowers confidence", prop.ForAll(
		func(t1, t2 int, c1, frac float64) bool {
			if t1 == t2 {
				return true
			}
			first := model.Signal{Type: model.SignalType(t1), CategoryID: "a", Confidence: c1,
				Weight: model.DefaultWeight(model.SignalType(t1)), Strength: model.StrengthExact}
			// At or above the current weighted mean, which for one signal is c1.
			c2 := c1 + frac*(model.MaxConfidence-c1)
			second := model.Signal{Type: model.SignalType(t2), CategoryID: "a", Confidence: c2,
				Weight: model.DefaultWeight(model.SignalType(t2)), Strength: model.StrengthExact}

			before := scorer.ScoreCategory([]model.Signal{first}).Confidence
			after := scorer.ScoreCategory([]model.Signal{first, second}).Confidence
			return after >= before-1e-12
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
		gen.Float64Range(0.01, model.MaxConfidence),
		gen.Float64Range(0, 1),
	))

	properties.Property("strength modifiers are monotonic", prop.ForAll(
		func(base float64) bool {
			prev := -1.0
			for _, st := range []model.Strength{model.StrengthWeak, model.StrengthMedium, model.StrengthStrong, model.StrengthExact} {
				c := model.NewSignal(model.SignalVendor, "a", "A", st, base, 3.75, model.SignalMetadata{}).Confidence
				if c < prev {
					return false
				}
				prev = c
			}
			return true
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestCalibrationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("calibrated confidence is non-decreasing in x", prop.ForAll(
		func(a, b float64, n int) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return CalibrateConfidence(lo, n) <= CalibrateConfidence(hi, n)+1e-12
		},
		gen.Float64Range(-0.2, 1.2),
		gen.Float64Range(-0.2, 1.2),
		gen.IntRange(0, 25),
	))

	properties.Property("calibrated confidence is within [0.05, 0.98] unless there is no evidence", prop.ForAll(
		func(x float64, n int) bool {
			c := CalibrateConfidence(x, n)
			if x <= 0 && n == 0 {
				return c == 0
			}
			return c >= 0.05 && c <= 0.98
		},
		gen.Float64Range(-0.5, 1.5),
		gen.IntRange(0, 25),
	))

	properties.Property("llm confidence is within [0.25, 0.95]", prop.ForAll(
		func(raw float64, strong bool) bool {
			c := CalibrateLLMConfidence(raw, strong)
			return c >= 0.25 && c <= 0.95
		},
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.Property("a strong pass-1 signal never lowers llm confidence", prop.ForAll(
		func(raw float64) bool {
			return CalibrateLLMConfidence(raw, true) >= CalibrateLLMConfidence(raw, false)
		},
		gen.Float64Range(0, 1),
	))

	properties.Property("llm confidence is non-decreasing in raw", prop.ForAll(
		func(a, b float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			return CalibrateLLMConfidence(lo, false) <= CalibrateLLMConfidence(hi, false)+1e-12
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
