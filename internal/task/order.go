package task

import (
	"cmp"
	"slices"
	"time"
)

func statusRank(s Status) int {
	switch s {
	case StatusRunning:
		return 0
	case StatusPending:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return 3
	}
}

// SortForDisplay orders tasks running first, then pending by soonest due
// (tasks without a due time last), then finished ones most recent first.
func SortForDisplay(tasks []*Task) {
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		if c := cmp.Compare(statusRank(a.Status), statusRank(b.Status)); c != 0 {
			return c
		}
		switch a.Status {
		case StatusPending:
			da, db := a.DueAt(), b.DueAt()
			switch {
			case da == nil && db == nil:
			case da == nil:
				return 1
			case db == nil:
				return -1
			default:
				if c := da.Compare(*db); c != 0 {
					return c
				}
			}
		case StatusCompleted, StatusFailed:
			if c := b.finishedAt().Compare(a.finishedAt()); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortForDispatch orders due tasks by priority descending, then by due time.
func SortForDispatch(tasks []*Task) {
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		da, db := a.DueAt(), b.DueAt()
		if da != nil && db != nil {
			if c := da.Compare(*db); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (t *Task) finishedAt() time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}
