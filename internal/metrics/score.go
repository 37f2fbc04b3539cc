// Package metrics scores generated SQL against ground truth: clause-level
// precision/recall/F1, normalized exact match, syntax validity and
// execution-based accuracy and latency.
package metrics

// PrecisionRecall compares two fragment lists as sets.
//
// An empty ground truth is matched perfectly only by an empty prediction.
// A non-empty ground truth with an empty prediction scores zero for both.
func PrecisionRecall(predicted, groundTruth []string) (float64, float64) {
	if len(groundTruth) == 0 {
		if len(predicted) == 0 {
			return 1.0, 1.0
		}
		return 0.0, 0.0
	}
	if len(predicted) == 0 {
		return 0.0, 0.0
	}

	pred := toSet(predicted)
	gt := toSet(groundTruth)

	hits := 0
	for f := range pred {
		if _, ok := gt[f]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(pred)), float64(hits) / float64(len(gt))
}

// F1 is the harmonic mean of precision and recall, zero when both are zero
func F1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// Score is a precision/recall/F1 triple
type Score struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}
