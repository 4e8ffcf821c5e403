package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SubTaskStatus tracks an open unit of work owned by a specialist.
type SubTaskStatus string

const (
	SubTaskPending    SubTaskStatus = "pending"
	SubTaskInProgress SubTaskStatus = "in_progress"
	SubTaskDone       SubTaskStatus = "done"
	SubTaskAbandoned  SubTaskStatus = "abandoned"
)

// Open reports whether the sub-task still needs attention.
func (s SubTaskStatus) Open() bool {
	return s == SubTaskPending || s == SubTaskInProgress
}

func (s SubTaskStatus) valid() bool {
	switch s {
	case SubTaskPending, SubTaskInProgress, SubTaskDone, SubTaskAbandoned:
		return true
	}
	return false
}

// Strategy is how specialist outputs are merged into one reply.
type Strategy string

const (
	StrategyFirstResult         Strategy = "first_result"
	StrategyConcatenate         Strategy = "concatenate"
	StrategyPlannerThenExecutor Strategy = "planner_then_executor"
)

// Turn is one message in the rolling conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SubTask is a unit of work a specialist opened for the user.
type SubTask struct {
	ID         string         `json:"id"`
	Specialist string         `json:"specialist"`
	Category   types.Category `json:"category"`
	Intent     string         `json:"intent"`
	// Question is set when the specialist asked the user for more input.
	Question  string        `json:"question,omitempty"`
	Status    SubTaskStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Dispatch is the last dispatch decision, kept so a retried event is
// answered from here instead of running again.
type Dispatch struct {
	EventID    string           `json:"event_id"`
	Categories []types.Category `json:"categories,omitempty"`
	Strategy   Strategy         `json:"strategy,omitempty"`
	Reply      *types.Reply     `json:"reply,omitempty"`
	At         time.Time        `json:"at"`
}

// Context is the per-user short-term state.
type Context struct {
	UserID       string    `json:"user_id"`
	Turns        []Turn    `json:"turns"`
	SubTasks     []SubTask `json:"sub_tasks"`
	LastDispatch *Dispatch `json:"last_dispatch,omitempty"`

	// OnboardingStep is the step whose prompt was shown last.
	OnboardingStep types.OnboardingStep `json:"onboarding_step,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid session context")

// New returns an empty context for the user.
func New(userID string) *Context {
	return &Context{
		UserID:   userID,
		Turns:    []Turn{},
		SubTasks: []SubTask{},
	}
}

// AddTurn appends a turn. Empty text is ignored.
func (c *Context) AddTurn(role Role, text string, at time.Time) {
	if text == "" {
		return
	}
	c.Turns = append(c.Turns, Turn{Role: role, Text: text, At: at})
}

// RecentTurns returns up to n most recent turns, oldest first.
func (c *Context) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	if n > len(c.Turns) {
		n = len(c.Turns)
	}
	out := make([]Turn, n)
	copy(out, c.Turns[len(c.Turns)-n:])
	return out
}

// OpenSubTask records a new sub-task and returns it.
func (c *Context) OpenSubTask(specialist string, category types.Category, intent, question string, status SubTaskStatus, now time.Time) SubTask {
	st := SubTask{
		ID:         uuid.NewString(),
		Specialist: specialist,
		Category:   category,
		Intent:     intent,
		Question:   question,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.SubTasks = append(c.SubTasks, st)
	return st
}

// SetSubTaskStatus updates a sub-task by id. It returns false when the id is unknown.
func (c *Context) SetSubTaskStatus(id string, status SubTaskStatus, now time.Time) bool {
	for i := range c.SubTasks {
		if c.SubTasks[i].ID == id {
			c.SubTasks[i].Status = status
			c.SubTasks[i].UpdatedAt = now
			return true
		}
	}
	return false
}

// PendingQuestion returns the most recent pending sub-task that is waiting
// on an answer from the user.
func (c *Context) PendingQuestion() (SubTask, bool) {
	for i := len(c.SubTasks) - 1; i >= 0; i-- {
		st := c.SubTasks[i]
		if st.Status == SubTaskPending && st.Question != "" {
			return st, true
		}
	}
	return SubTask{}, false
}

// OpenSubTasks returns pending and in-progress sub-tasks, oldest first.
func (c *Context) OpenSubTasks() []SubTask {
	var out []SubTask
	for _, st := range c.SubTasks {
		if st.Status.Open() {
			out = append(out, st)
		}
	}
	return out
}

// Prune bounds the context. Oldest turns go first. Finished sub-tasks are
// dropped before open ones; if open sub-tasks alone still exceed the bound,
// the oldest are marked abandoned and dropped.
func (c *Context) Prune(maxTurns, maxSubTasks int, now time.Time) (abandoned []SubTask) {
	if maxTurns >= 0 && len(c.Turns) > maxTurns {
		c.Turns = append([]Turn(nil), c.Turns[len(c.Turns)-maxTurns:]...)
	}

	if maxSubTasks < 0 || len(c.SubTasks) <= maxSubTasks {
		return nil
	}

	excess := len(c.SubTasks) - maxSubTasks
	drop := make(map[int]bool, excess)
	for i := 0; i < len(c.SubTasks) && len(drop) < excess; i++ {
		if !c.SubTasks[i].Status.Open() {
			drop[i] = true
		}
	}
	for i := 0; i < len(c.SubTasks) && len(drop) < excess; i++ {
		if !drop[i] {
			drop[i] = true
			st := c.SubTasks[i]
			st.Status = SubTaskAbandoned
			st.UpdatedAt = now
			abandoned = append(abandoned, st)
		}
	}

	kept := make([]SubTask, 0, maxSubTasks)
	for i, st := range c.SubTasks {
		if !drop[i] {
			kept = append(kept, st)
		}
	}
	c.SubTasks = kept
	return abandoned
}

// Validate checks structural integrity of a loaded context.
func (c *Context) Validate(userID string) error {
	if c.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalid)
	}
	if userID != "" && c.UserID != userID {
		return fmt.Errorf("%w: user id %q does not match %q", ErrInvalid, c.UserID, userID)
	}
	for i, t := range c.Turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalid, i, t.Role)
		}
	}
	seen := make(map[string]bool, len(c.SubTasks))
	for _, st := range c.SubTasks {
		if st.ID == "" {
			return fmt.Errorf("%w: sub-task without id", ErrInvalid)
		}
		if seen[st.ID] {
			return fmt.Errorf("%w: duplicate sub-task %s", ErrInvalid, st.ID)
		}
		seen[st.ID] = true
		if !st.Status.valid() {
			return fmt.Errorf("%w: sub-task %s has unknown status %q", ErrInvalid, st.ID, st.Status)
		}
	}
	if c.OnboardingStep != "" && c.OnboardingStep.Ordinal() < 0 {
		return fmt.Errorf("%w: unknown onboarding step %q", ErrInvalid, c.OnboardingStep)
	}
	if c.LastDispatch != nil && c.LastDispatch.EventID == "" {
		return fmt.Errorf("%w: last dispatch without event id", ErrInvalid)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	cp := *c
	cp.Turns = append([]Turn(nil), c.Turns...)
	cp.SubTasks = append([]SubTask(nil), c.SubTasks...)
	if c.LastDispatch != nil {
		d := *c.LastDispatch
		d.Categories = append([]types.Category(nil), c.LastDispatch.Categories...)
		if c.LastDispatch.Reply != nil {
			r := *c.LastDispatch.Reply
			r.Blocks = append([]types.Block(nil), c.LastDispatch.Reply.Blocks...)
			d.Reply = &r
		}
		cp.LastDispatch = &d
	}
	return &cp
}
