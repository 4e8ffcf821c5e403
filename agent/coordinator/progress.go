package coordinator

import (
	"fmt"
	"strings"

	"github.com/BaSui01/dailycrew/agent/session"
	"github.com/BaSui01/dailycrew/types"
)

// progressHint 签到列出开放子任务时附带的用法说明
const progressHint = `Say "working on <task>" or "done with <task>" to update the list.`

var (
	doneMarkers    = []string{"done", "finished", "completed", "complete", "wrapped up"}
	startedMarkers = []string{"working on", "started", "starting", "picked up", "on it"}
)

// progress 消息提到某个开放子任务并带有完成或开始的措辞时返回新状态，
// rest 为去掉子任务标题后的文本。多个子任务匹配时取标题最长的一个。
func progress(sctx *session.Context, text string) (st session.SubTask, status session.SubTaskStatus, rest string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return session.SubTask{}, "", "", false
	}

	var (
		match session.SubTask
		best  int
	)
	for _, open := range sctx.OpenSubTasks() {
		if open.Question != "" {
			continue
		}
		title := strings.ToLower(summarize(open.Intent))
		if len(title) > best && strings.Contains(lower, title) {
			match, best = open, len(title)
		}
	}
	if best == 0 {
		return session.SubTask{}, "", "", false
	}

	// 标题本身可能含有标记词或类别词，判断前先去掉
	rest = strings.Replace(lower, strings.ToLower(summarize(match.Intent)), " ", 1)
	switch {
	case anyPhrase(rest, doneMarkers):
		return match, session.SubTaskDone, rest, true
	case anyPhrase(rest, startedMarkers) && match.Status == session.SubTaskPending:
		return match, session.SubTaskInProgress, rest, true
	}
	return session.SubTask{}, "", "", false
}

func anyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

// trackProgress 在分类前处理进度汇报。matched 时 rest 是去掉子任务标题后用于分类的文本；
// 消息除进度外没有其他诉求时直接回复确认并返回 handled。
func (c *Coordinator) trackProgress(t *turn) (rest string, matched, handled bool) {
	if t.ev.Kind != types.EventKindMessage {
		return "", false, false
	}
	st, status, rest, ok := progress(t.sctx, t.ev.Text)
	if !ok {
		return "", false, false
	}
	t.sctx.SetSubTaskStatus(st.ID, status, c.now())
	t.details["sub_task_progress"] = map[string]any{"id": st.ID, "status": string(status)}

	if !Classify(types.Event{Kind: t.ev.Kind, Text: rest}, nil).Ambiguous() {
		return rest, true, false
	}

	var msg string
	if status == session.SubTaskDone {
		msg = fmt.Sprintf("Nice work! I've marked %q as done.", summarize(st.Intent))
	} else {
		msg = fmt.Sprintf("Got it, %q is in progress.", summarize(st.Intent))
	}
	if n := len(t.sctx.OpenSubTasks()); n > 0 {
		msg += fmt.Sprintf(" %d open task(s) left.", n)
	} else {
		msg += " That clears your list."
	}
	t.reply = types.TextReply(msg)
	t.outcome = "sub_task_progress"
	return rest, true, true
}
