package service

import (
	"math"
	"sort"
	"time"

	"pest-diagnosis-service/models"
	"pest-diagnosis-service/prompts"
)

const probabilitySumTolerance = 1e-6

// NormalizeCandidates clamps probabilities to [0,1], rescales them to sum to 1 when the
// total is positive and off by more than the tolerance, and orders candidates by
// descending probability. Ties keep their backend order.
func NormalizeCandidates(candidates []models.PestOrDisease) []models.PestOrDisease {
	out := make([]models.PestOrDisease, len(candidates))
	copy(out, candidates)

	sum := 0.0
	for i := range out {
		out[i].Probability = math.Min(1, math.Max(0, out[i].Probability))
		sum += out[i].Probability
	}
	if sum > 0 && math.Abs(sum-1) > probabilitySumTolerance {
		for i := range out {
			out[i].Probability /= sum
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}

// alignPlan anchors step dates to start: step N is dated start+(N-1) days. The plan
// window keeps the backend's own length when it states one, and never ends before the
// last step.
func alignPlan(plan *models.ImplementationPlan, start time.Time) {
	end := start.AddDate(0, 0, plan.Steps[len(plan.Steps)-1].Day-1)
	if span, ok := planSpanDays(plan.PlanStartDate, plan.PlanEndDate); ok {
		if stated := start.AddDate(0, 0, span); stated.After(end) {
			end = stated
		}
	}

	for i := range plan.Steps {
		plan.Steps[i].Date = start.AddDate(0, 0, plan.Steps[i].Day-1).Format(prompts.DateLayout)
	}
	plan.PlanStartDate = start.Format(prompts.DateLayout)
	plan.PlanEndDate = end.Format(prompts.DateLayout)
	plan.TotalDuration = int(end.Sub(start).Hours()/24) + 1
}

func planSpanDays(from, to string) (int, bool) {
	a, err := time.Parse(prompts.DateLayout, from)
	if err != nil {
		return 0, false
	}
	b, err := time.Parse(prompts.DateLayout, to)
	if err != nil || b.Before(a) {
		return 0, false
	}
	return int(b.Sub(a).Hours() / 24), true
}
