package cleanup

import (
	"errors"
	"io/fs"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/database"
	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/metrics"
)

// Outcome is the result of removing one candidate.
type Outcome int

const (
	Deleted Outcome = iota
	SkippedNotFound
	PermissionDenied
	// Failed covers every error that is not one of the expected outcomes.
	// It stops the run.
	Failed
)

// Classify maps the error returned by a removal to its Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Deleted
	case errors.Is(err, fs.ErrNotExist):
		return SkippedNotFound
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	default:
		return Failed
	}
}

func (o Outcome) String() string {
	switch o {
	case Deleted:
		return "Deleted"
	case SkippedNotFound:
		return "SkippedNotFound"
	case PermissionDenied:
		return "PermissionDenied"
	default:
		return "Failed"
	}
}

func (o Outcome) action() string {
	switch o {
	case Deleted:
		return database.ActionDelete
	case SkippedNotFound:
		return database.ActionSkipNotFound
	case PermissionDenied:
		return database.ActionPermissionDenied
	default:
		return database.ActionError
	}
}

func (o Outcome) metricLabel() string {
	switch o {
	case Deleted:
		return metrics.OutcomeDeleted
	case SkippedNotFound:
		return metrics.OutcomeSkippedNotFound
	case PermissionDenied:
		return metrics.OutcomePermissionDenied
	default:
		return metrics.OutcomeFailed
	}
}
