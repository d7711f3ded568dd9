package sim

import (
	"math"

	"minigames/internal/domain"
)

// TaskState is the planner execution state. Schedule is an immutable
// snapshot of the plan taken when execution starts.
type TaskState struct {
	Schedule []domain.Item `json:"schedule"`
	Capacity float64       `json:"capacity"`
	Elapsed  float64       `json:"elapsed"`
	Index    int           `json:"index"`
	Within   float64       `json:"within"`
	Outcome  float64       `json:"outcome"`
	Running  bool          `json:"running"`
}

func StartTasks(schedule []domain.Item, capacity float64) TaskState {
	s := make([]domain.Item, len(schedule))
	copy(s, schedule)
	st := TaskState{Schedule: s, Capacity: capacity, Running: true}
	if st.finished(DefaultEpsilon) {
		st.Running = false
	}
	return st
}

// AdvanceTasks consumes delta simulated hours against the schedule and
// returns the new state. s is not modified.
func AdvanceTasks(s TaskState, delta, eps float64) TaskState {
	if !s.Running || delta <= 0 {
		return s
	}
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	remaining := delta
	for remaining > 0 && s.Index < len(s.Schedule) && s.Elapsed < s.Capacity {
		cur := s.Schedule[s.Index]
		step := math.Min(cur.Cost-s.Within, remaining)
		step = math.Min(step, s.Capacity-s.Elapsed)
		if step < 0 {
			step = 0
		}
		s.Outcome += step * cur.Value
		s.Elapsed += step
		s.Within += step
		remaining -= step
		if s.Within >= cur.Cost-eps {
			s.Index++
			s.Within = 0
		} else if step == 0 {
			break
		}
	}
	if s.finished(eps) {
		s.Running = false
	}
	return s
}

func (s TaskState) finished(eps float64) bool {
	return s.Elapsed >= s.Capacity-eps || s.Index >= len(s.Schedule)
}

// Done reports whether the workday is over.
func (s TaskState) Done() bool { return !s.Running }

func (s TaskState) Current() (domain.Item, bool) {
	if s.Index < 0 || s.Index >= len(s.Schedule) {
		return domain.Item{}, false
	}
	return s.Schedule[s.Index], true
}

// Progress is the fraction of the current item completed, 0 when none.
func (s TaskState) Progress() float64 {
	cur, ok := s.Current()
	if !ok || cur.Cost <= 0 {
		return 0
	}
	return math.Min(1, s.Within/cur.Cost)
}
