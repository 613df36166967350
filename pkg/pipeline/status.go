package pipeline

import "github.com/unspun/unspun/pkg/models"

// aggregateStatus computes the run's terminal status from its stage
// results. Only critical stages participate: a non-critical stage can
// never flip the overall status. Skipped results are neutral.
func aggregateStatus(results []models.StageResult, critical map[models.StageKind]bool) models.JobStatus {
	var completed, failed int

	for _, result := range results {
		if !critical[result.Stage] {
			continue
		}

		switch result.Status {
		case models.StageCompleted, models.StagePartial:
			completed++
		case models.StageFailed:
			failed++
		case models.StageSkipped:
		}
	}

	switch {
	case failed == 0:
		return models.JobStatusCompleted
	case completed == 0:
		return models.JobStatusFailed
	default:
		return models.JobStatusPartial
	}
}
