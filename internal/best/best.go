// Package best detects personal bests on direction-aware metrics.
package best

import "goalpace/internal/domain"

// IsNewBest reports whether candidate beats every value in history.
// An empty history makes any candidate a best. Ties are not bests.
func IsNewBest(history []float64, candidate float64, dir domain.Direction) bool {
	if len(history) == 0 {
		return true
	}
	b := history[0]
	for _, v := range history[1:] {
		if better(v, b, dir) {
			b = v
		}
	}
	return better(candidate, b, dir)
}

// Best scans history for its most favorable value.
func Best(metricKey string, history []float64, dir domain.Direction) (domain.BestRecord, bool) {
	if len(history) == 0 {
		return domain.BestRecord{}, false
	}
	b := history[0]
	for _, v := range history[1:] {
		if better(v, b, dir) {
			b = v
		}
	}
	return domain.BestRecord{MetricKey: metricKey, Direction: dir, BestValue: b}, true
}

type Result struct {
	MetricKey string             `json:"metric_key"`
	Candidate float64            `json:"candidate"`
	IsNewBest bool               `json:"is_new_best"`
	Previous  *domain.BestRecord `json:"previous,omitempty"`
}

// Evaluate checks candidate against history without appending it.
func Evaluate(metricKey string, history []float64, candidate float64, dir domain.Direction) Result {
	res := Result{
		MetricKey: metricKey,
		Candidate: candidate,
		IsNewBest: IsNewBest(history, candidate, dir),
	}
	if prev, ok := Best(metricKey, history, dir); ok {
		res.Previous = &prev
	}
	return res
}

func better(a, b float64, dir domain.Direction) bool {
	if dir == domain.Minimize {
		return a < b
	}
	return a > b
}
