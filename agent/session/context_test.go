package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestContext_TurnsAndSubTasks(t *testing.T) {
	c := New("u1")
	c.AddTurn(RoleUser, "plan my day", t0)
	c.AddTurn(RoleAssistant, "", t0)
	c.AddTurn(RoleAssistant, "here is a plan", t0.Add(time.Second))

	require.Len(t, c.Turns, 2)
	assert.Equal(t, []Turn{{Role: RoleAssistant, Text: "here is a plan", At: t0.Add(time.Second)}}, c.RecentTurns(1))
	assert.Len(t, c.RecentTurns(10), 2)
	assert.Nil(t, c.RecentTurns(0))

	done := c.OpenSubTask("Planner", types.CategoryPlanning, "plan", "", SubTaskDone, t0)
	pending := c.OpenSubTask("Researcher", types.CategoryResearch, "research", "Which topic?", SubTaskPending, t0)

	got, ok := c.PendingQuestion()
	require.True(t, ok)
	assert.Equal(t, pending.ID, got.ID)
	assert.Equal(t, []SubTask{pending}, c.OpenSubTasks())

	assert.True(t, c.SetSubTaskStatus(pending.ID, SubTaskDone, t0.Add(time.Minute)))
	assert.False(t, c.SetSubTaskStatus("nope", SubTaskDone, t0))
	_, ok = c.PendingQuestion()
	assert.False(t, ok)
	assert.Empty(t, c.OpenSubTasks())
	assert.NotEqual(t, done.ID, pending.ID)
}

func TestContext_PruneDropsFinishedFirst(t *testing.T) {
	c := New("u1")
	open1 := c.OpenSubTask("Analyst", types.CategoryDecomposition, "a", "", SubTaskPending, t0)
	c.OpenSubTask("Planner", types.CategoryPlanning, "b", "", SubTaskDone, t0)
	open2 := c.OpenSubTask("Analyst", types.CategoryDecomposition, "c", "", SubTaskInProgress, t0)
	c.OpenSubTask("Planner", types.CategoryPlanning, "d", "", SubTaskAbandoned, t0)

	abandoned := c.Prune(10, 2, t0)

	assert.Empty(t, abandoned)
	assert.Equal(t, []string{open1.ID, open2.ID}, []string{c.SubTasks[0].ID, c.SubTasks[1].ID})
}

func TestContext_PruneAbandonsOldestOpen(t *testing.T) {
	c := New("u1")
	oldest := c.OpenSubTask("Analyst", types.CategoryDecomposition, "a", "", SubTaskPending, t0)
	c.OpenSubTask("Analyst", types.CategoryDecomposition, "b", "", SubTaskPending, t0)
	c.OpenSubTask("Analyst", types.CategoryDecomposition, "c", "", SubTaskPending, t0)

	abandoned := c.Prune(10, 2, t0.Add(time.Hour))

	require.Len(t, abandoned, 1)
	assert.Equal(t, oldest.ID, abandoned[0].ID)
	assert.Equal(t, SubTaskAbandoned, abandoned[0].Status)
	assert.Len(t, c.SubTasks, 2)
}

func TestContext_Validate(t *testing.T) {
	valid := New("u1")
	valid.OpenSubTask("Planner", types.CategoryPlanning, "x", "", SubTaskPending, t0)
	require.NoError(t, valid.Validate("u1"))

	cases := map[string]func(c *Context){
		"empty user":     func(c *Context) { c.UserID = "" },
		"other user":     func(c *Context) { c.UserID = "u2" },
		"bad role":       func(c *Context) { c.Turns = append(c.Turns, Turn{Role: "system", Text: "x"}) },
		"bad status":     func(c *Context) { c.SubTasks[0].Status = "lost" },
		"empty task id":  func(c *Context) { c.SubTasks[0].ID = "" },
		"duplicate task": func(c *Context) { c.SubTasks = append(c.SubTasks, c.SubTasks[0]) },
		"dispatch no id": func(c *Context) { c.LastDispatch = &Dispatch{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid.Clone()
			mutate(c)
			assert.ErrorIs(t, c.Validate("u1"), ErrInvalid)
		})
	}
}

func TestContext_CloneIsDeep(t *testing.T) {
	c := New("u1")
	c.AddTurn(RoleUser, "hi", t0)
	c.LastDispatch = &Dispatch{EventID: "e1", Categories: []types.Category{types.CategoryPlanning}, Reply: types.TextReply("ok")}

	cp := c.Clone()
	cp.Turns[0].Text = "changed"
	cp.LastDispatch.Categories[0] = types.CategoryCode
	cp.LastDispatch.Reply.Text = "changed"

	assert.Equal(t, "hi", c.Turns[0].Text)
	assert.Equal(t, types.CategoryPlanning, c.LastDispatch.Categories[0])
	assert.Equal(t, "ok", c.LastDispatch.Reply.Text)
}

func TestProperty_PruneBounds(t *testing.T) {
	statuses := []SubTaskStatus{SubTaskPending, SubTaskInProgress, SubTaskDone, SubTaskAbandoned}

	rapid.Check(t, func(rt *rapid.T) {
		c := New("u")
		nTurns := rapid.IntRange(0, 60).Draw(rt, "turns")
		for i := 0; i < nTurns; i++ {
			c.AddTurn(RoleUser, fmt.Sprintf("t%d", i), t0)
		}
		nTasks := rapid.IntRange(0, 40).Draw(rt, "tasks")
		openBefore := 0
		for i := 0; i < nTasks; i++ {
			st := rapid.SampledFrom(statuses).Draw(rt, fmt.Sprintf("status_%d", i))
			if st.Open() {
				openBefore++
			}
			c.OpenSubTask("s", types.CategoryPlanning, fmt.Sprintf("i%d", i), "", st, t0)
		}
		maxTurns := rapid.IntRange(0, 50).Draw(rt, "maxTurns")
		maxTasks := rapid.IntRange(0, 30).Draw(rt, "maxTasks")

		abandoned := c.Prune(maxTurns, maxTasks, t0)

		if len(c.Turns) > maxTurns || len(c.SubTasks) > maxTasks {
			rt.Fatalf("bounds exceeded: %d turns, %d tasks", len(c.Turns), len(c.SubTasks))
		}
		if nTurns > 0 && len(c.Turns) > 0 && c.Turns[len(c.Turns)-1].Text != fmt.Sprintf("t%d", nTurns-1) {
			rt.Fatalf("newest turn was dropped")
		}
		openAfter := len(c.OpenSubTasks())
		// open sub-tasks are only lost when finished ones could not make room
		if openAfter+len(abandoned) != openBefore {
			rt.Fatalf("open accounting: before=%d after=%d abandoned=%d", openBefore, openAfter, len(abandoned))
		}
		if len(abandoned) > 0 && len(c.SubTasks) != openAfter {
			rt.Fatalf("abandoned open work while finished sub-tasks remained")
		}
	})
}
