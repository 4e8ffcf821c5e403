package specialist

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/types"
	"go.uber.org/zap"
)

var emailAddress = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

var topicCues = []string{"about", "regarding", "re:", "subject:", "concerning"}

// Mailbox 在邮箱中创建草稿
type Mailbox interface {
	CreateDraft(ctx context.Context, payload, to, subject, body string) (string, error)
}

// =============================================================================
// ✉️ Communicator
// =============================================================================

// Communicator 起草邮件或列出当天会议，需要 Google 凭据
type Communicator struct {
	mail     Mailbox
	calendar CalendarReader
	logger   *zap.Logger
}

// NewCommunicator 创建沟通专家
func NewCommunicator(mail Mailbox, calendar CalendarReader, logger *zap.Logger) *Communicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Communicator{mail: mail, calendar: calendar, logger: logger.With(zap.String("component", "communicator"))}
}

// Descriptor implements Specialist.
func (c *Communicator) Descriptor() Descriptor {
	return Descriptor{
		Name:     "Communicator",
		Category: types.CategoryCommunication,
		Stage:    StageExecution,
		Requires: []types.IntegrationKind{types.IntegrationGoogle},
	}
}

// Run implements Specialist.
func (c *Communicator) Run(ctx context.Context, task Task) Result {
	h, ok := task.Handle(types.IntegrationGoogle)
	if !ok {
		return Failed(types.ErrCredentialMissing, "google credential not provided")
	}

	text := strings.TrimSpace(task.Intent + "\n" + task.Answer)
	to := emailAddress.FindString(text)
	if to == "" && containsAny(text, "meeting", "calendar", "agenda") && !containsAny(text, "email", "mail", "draft") {
		return c.todaysMeetings(ctx, task, h)
	}

	if c.mail == nil {
		return Failed(types.ErrServiceUnavailable, "mail client not configured")
	}
	if to == "" {
		return NeedsInfo("Who should I address the email to? Reply with their email address.")
	}
	topic := c.topic(task, to)
	if topic == "" {
		return NeedsInfo(fmt.Sprintf("What should the email to %s be about?", to))
	}

	subject := truncate(capitalize(topic), 78)
	body := draftBody(to, topic, task.Upstream)

	payload, err := h.Open(ctx)
	if err != nil {
		return FromError(err)
	}
	id, err := c.mail.CreateDraft(ctx, payload.Reveal(), to, subject, body)
	if err != nil {
		return FromError(err)
	}

	out := fmt.Sprintf("I've created a Gmail draft to %s.\n\n**Subject:** %s\n\n%s", to, subject, body)
	return Outcome(out).WithAttachment("draft_id", id).WithAttachment("to", to)
}

func (c *Communicator) topic(task Task, to string) string {
	if t, ok := topicAfter(task.Intent, topicCues); ok && t != "" {
		return strings.TrimSpace(strings.ReplaceAll(t, to, ""))
	}
	answer := strings.TrimSpace(strings.ReplaceAll(task.Answer, to, ""))
	if t, ok := topicAfter(answer, topicCues); ok && t != "" {
		return t
	}
	if answer != "" && !emailAddress.MatchString(answer) {
		return trimConnectives(answer)
	}
	return ""
}

func (c *Communicator) todaysMeetings(ctx context.Context, task Task, h credential.Handle) Result {
	if c.calendar == nil {
		return Failed(types.ErrServiceUnavailable, "calendar client not configured")
	}
	payload, err := h.Open(ctx)
	if err != nil {
		return FromError(err)
	}
	loc := task.Location()
	now := task.Now
	if now.IsZero() {
		now = time.Now()
	}
	events, err := c.calendar.Events(ctx, payload.Reveal(), now.In(loc), loc)
	if err != nil {
		return FromError(err)
	}
	if len(events) == 0 {
		return Outcome("**Today's Meetings:** No meetings scheduled for today.").WithAttachment("meetings", "0")
	}
	var b strings.Builder
	b.WriteString("**Today's Meetings:**\n")
	for _, ev := range events {
		if ev.AllDay {
			fmt.Fprintf(&b, "- All day: %s\n", ev.Summary)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", ev.Start.In(loc).Format("15:04"), ev.Summary)
	}
	return Outcome(strings.TrimRight(b.String(), "\n")).WithAttachment("meetings", strconv.Itoa(len(events)))
}

func draftBody(to, topic, upstream string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", recipientName(to))
	b.WriteString("I hope this email finds you well.\n\n")
	fmt.Fprintf(&b, "I wanted to reach out regarding %s.\n\n", topic)
	if upstream != "" {
		fmt.Fprintf(&b, "%s\n\n", truncate(firstLine(upstream), 200))
	}
	b.WriteString("Please let me know if you have any questions or need further information.\n\n")
	b.WriteString("Best regards,")
	return b.String()
}

func recipientName(addr string) string {
	local := addr
	if i := strings.IndexByte(addr, '@'); i > 0 {
		local = addr[:i]
	}
	if i := strings.IndexAny(local, "._+-"); i > 0 {
		local = local[:i]
	}
	return capitalize(local)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
