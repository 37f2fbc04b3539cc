package metrics

import (
	"fmt"
	"slices"

	"text2sql/internal/components"
)

// Weights maps a clause type to its importance in the overall score.
// Weights are renormalized by their sum, so they need not add up to one.
type Weights map[components.ClauseType]float64

// DefaultWeights returns the standard clause weights. HAVING is reported
// but carries no weight.
func DefaultWeights() Weights {
	return Weights{
		components.SelectColumns:      0.30,
		components.WhereConditions:    0.25,
		components.JoinOperations:     0.20,
		components.GroupByColumns:     0.10,
		components.OrderByColumns:     0.10,
		components.AggregateFunctions: 0.05,
		components.HavingConditions:   0.00,
	}
}

// ComponentAnalysis is the comparison of one clause type
type ComponentAnalysis struct {
	Clause      components.ClauseType `json:"component_type"`
	Predicted   []string              `json:"predicted_components"`
	GroundTruth []string              `json:"ground_truth_components"`
	Precision   float64               `json:"precision"`
	Recall      float64               `json:"recall"`
	F1          float64               `json:"f1_score"`
	ExactMatch  bool                  `json:"exact_match"`
}

// ComponentMetrics is the per-clause analysis plus the weighted overall score
type ComponentMetrics struct {
	Components       map[components.ClauseType]ComponentAnalysis `json:"components"`
	OverallPrecision float64                                     `json:"overall_precision"`
	OverallRecall    float64                                     `json:"overall_recall"`
	OverallF1        float64                                     `json:"overall_f1"`
	Weights          Weights                                     `json:"component_weights"`
}

// ComponentCalculator compares two SQL strings clause by clause.
// It holds no mutable state and is safe for concurrent use.
type ComponentCalculator struct {
	weights Weights
}

// NewComponentCalculator creates a calculator. A nil map selects DefaultWeights.
func NewComponentCalculator(weights Weights) (*ComponentCalculator, error) {
	if weights == nil {
		weights = DefaultWeights()
	}
	w := make(Weights, len(weights))
	for ct, v := range weights {
		if v < 0 {
			return nil, fmt.Errorf("weight for %s must not be negative, got %v", ct, v)
		}
		if !slices.Contains(components.ClauseTypes, ct) {
			return nil, fmt.Errorf("unknown clause type %q", ct)
		}
		w[ct] = v
	}
	return &ComponentCalculator{weights: w}, nil
}

// DefaultComponentCalculator uses DefaultWeights
func DefaultComponentCalculator() *ComponentCalculator {
	return &ComponentCalculator{weights: DefaultWeights()}
}

// Weights returns a copy of the calculator's weights
func (c *ComponentCalculator) Weights() Weights {
	w := make(Weights, len(c.weights))
	for k, v := range c.weights {
		w[k] = v
	}
	return w
}

// Analyze compares the fragments of a single clause type
func (c *ComponentCalculator) Analyze(ct components.ClauseType, predicted, groundTruth []string) ComponentAnalysis {
	p, r := PrecisionRecall(predicted, groundTruth)
	return ComponentAnalysis{
		Clause:      ct,
		Predicted:   predicted,
		GroundTruth: groundTruth,
		Precision:   p,
		Recall:      r,
		F1:          F1(p, r),
		ExactMatch:  slices.Equal(predicted, groundTruth),
	}
}

// Calculate extracts both statements and computes the weighted score.
// A zero total weight yields zero overall scores.
func (c *ComponentCalculator) Calculate(predictedSQL, groundTruthSQL string) ComponentMetrics {
	pred := components.Extract(predictedSQL)
	gt := components.Extract(groundTruthSQL)

	out := ComponentMetrics{
		Components: make(map[components.ClauseType]ComponentAnalysis, len(components.ClauseTypes)),
		Weights:    c.Weights(),
	}

	var weightedP, weightedR, total float64
	for _, ct := range components.ClauseTypes {
		a := c.Analyze(ct, pred[ct], gt[ct])
		out.Components[ct] = a

		w := c.weights[ct]
		weightedP += a.Precision * w
		weightedR += a.Recall * w
		total += w
	}

	if total > 0 {
		out.OverallPrecision = weightedP / total
		out.OverallRecall = weightedR / total
		out.OverallF1 = F1(out.OverallPrecision, out.OverallRecall)
	}
	return out
}

// Scores flattens the analysis into clause-name keyed scores plus "overall"
func (m ComponentMetrics) Scores() map[string]Score {
	out := make(map[string]Score, len(m.Components)+1)
	for ct, a := range m.Components {
		out[string(ct)] = Score{Precision: a.Precision, Recall: a.Recall, F1: a.F1}
	}
	out[OverallKey] = Score{Precision: m.OverallPrecision, Recall: m.OverallRecall, F1: m.OverallF1}
	return out
}

// OverallKey is the key of the weighted aggregate in score maps
const OverallKey = "overall"
