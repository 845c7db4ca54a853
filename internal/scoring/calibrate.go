package scoring

import "math"

// CalibrationParams holds the constants of both calibration curves. They
// were tuned by hand against observed accuracy and are kept overridable so
// they can be refit against labeled data.
type CalibrationParams struct {
	Floor float64
	Cap   float64

	// Internal confidence above HighZone only receives a small count bonus.
	HighZone       float64
	HighCountScale float64
	HighCountMax   float64

	SigmoidCenter float64
	SigmoidSlope  float64
	MappedMin     float64
	MappedMax     float64
	LowCountScale float64
	LowCountMax   float64

	// LLM self-reported confidence.
	LLMTemperature float64
	LLMScaledBlend float64
	LLMStrongBonus float64
	LLMMin         float64
	LLMMax         float64
}

// DefaultCalibrationParams returns the production calibration constants.
func DefaultCalibrationParams() CalibrationParams {
	return CalibrationParams{
		Floor:          0.05,
		Cap:            0.98,
		HighZone:       0.90,
		HighCountScale: 0.02,
		HighCountMax:   0.03,
		SigmoidCenter:  0.45,
		SigmoidSlope:   6,
		MappedMin:      0.1,
		MappedMax:      0.85,
		LowCountScale:  0.05,
		LowCountMax:    0.1,
		LLMTemperature: 2.5,
		LLMScaledBlend: 0.7,
		LLMStrongBonus: 0.08,
		LLMMin:         0.25,
		LLMMax:         0.95,
	}
}

// Calibrator maps raw confidences onto calibrated ones.
type Calibrator struct {
	params CalibrationParams
}

// NewCalibrator creates a calibrator.
func NewCalibrator(params CalibrationParams) *Calibrator {
	return &Calibrator{params: params}
}

// Confidence calibrates the scorer's internal confidence x for a category
// backed by signalCount signals. The result is 0 only when there is no
// evidence at all and otherwise lies in [Floor, Cap]. It is non-decreasing
// in x.
func (c *Calibrator) Confidence(x float64, signalCount int) float64 {
	p := c.params
	switch {
	case x <= 0 && signalCount == 0:
		return 0
	case x <= 0:
		return p.Floor
	case x >= p.Cap:
		return p.Cap
	}

	logCount := math.Log(float64(signalCount) + 1)
	if x >= p.HighZone {
		return clamp(x+math.Min(p.HighCountMax, logCount*p.HighCountScale), p.Floor, p.Cap)
	}

	sigmoid := 1 / (1 + math.Exp(-(x-p.SigmoidCenter)*p.SigmoidSlope))
	mapped := p.MappedMin + sigmoid*(p.MappedMax-p.MappedMin)
	return clamp(mapped+math.Min(p.LowCountMax, logCount*p.LowCountScale), p.Floor, p.Cap)
}

// LLMConfidence corrects an LLM's self-reported confidence for
// overconfidence: temperature scaling on the logit, a blend with a
// Beta(2,2)-weighted pull toward 0.5, an optional bonus when Pass-1
// independently produced a strong signal for the same category, and a clamp
// to [LLMMin, LLMMax].
func (c *Calibrator) LLMConfidence(raw float64, hasStrongPass1Signal bool) float64 {
	p := c.params
	const eps = 1e-6
	raw = clamp(raw, eps, 1-eps)

	logit := math.Log(raw / (1 - raw))
	scaled := 1 / (1 + math.Exp(-logit/p.LLMTemperature))

	// Beta(2,2) density normalized to 1 at the mode: 4s(1-s).
	w := 4 * scaled * (1 - scaled)
	adjusted := 0.5 + (scaled-0.5)*w

	out := p.LLMScaledBlend*scaled + (1-p.LLMScaledBlend)*adjusted
	if hasStrongPass1Signal {
		out += p.LLMStrongBonus
	}
	return clamp(out, p.LLMMin, p.LLMMax)
}

var defaultCalibrator = NewCalibrator(DefaultCalibrationParams())

// CalibrateConfidence calibrates with the default parameters.
func CalibrateConfidence(x float64, signalCount int) float64 {
	return defaultCalibrator.Confidence(x, signalCount)
}

// CalibrateLLMConfidence calibrates LLM confidence with the default parameters.
func CalibrateLLMConfidence(raw float64, hasStrongPass1Signal bool) float64 {
	return defaultCalibrator.LLMConfidence(raw, hasStrongPass1Signal)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
