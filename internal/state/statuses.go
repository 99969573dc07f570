package state

// JobStatus is shared by jobs and generations. Both move through the same lifecycle.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no worker will pick the row up again on its own.
// A failed job with attempts left is still claimable, so failed is not terminal here.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s JobStatus) IsValid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

var AllStatuses = []JobStatus{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusQueued, To: StatusProcessing},
	{From: StatusFailed, To: StatusProcessing},
	{From: StatusProcessing, To: StatusProcessing}, // stale lock reclaimed
	{From: StatusProcessing, To: StatusQueued},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusQueued, To: StatusCancelled},
	{From: StatusFailed, To: StatusCancelled},
	{From: StatusProcessing, To: StatusCancelled},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
