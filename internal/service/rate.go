package service

import "github.com/reelhub/review-api/internal/models"

// RateInputs are the three optional rate layers for one approved submission.
type RateInputs struct {
	VideoRate  *int64
	WorkerRate *int64
	GradeRate  *int64
}

// ResolveRate picks exactly one rate, most specific layer first:
// per-video override, then the worker's personal rate, then their grade.
// With no layer set the rate is zero. Layers are never summed.
func ResolveRate(in RateInputs) (int64, models.RateSource) {
	switch {
	case in.VideoRate != nil:
		return *in.VideoRate, models.RateSourceVideo
	case in.WorkerRate != nil:
		return *in.WorkerRate, models.RateSourceWorker
	case in.GradeRate != nil:
		return *in.GradeRate, models.RateSourceGrade
	default:
		return 0, models.RateSourceNone
	}
}

func rateInputsFor(work models.ApprovedWork, profile *models.WorkerRateProfile) RateInputs {
	in := RateInputs{VideoRate: work.CustomRate}
	if profile != nil {
		in.WorkerRate = profile.BaseRate
		in.GradeRate = profile.GradeRate
	}
	return in
}
