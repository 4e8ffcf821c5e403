package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/dailycrew/types"
)

var researchCues = []string{
	"research", "look up", "look into", "investigate", "find out", "learn about", "read up", "compare",
}

// Researcher 生成研究大纲，不依赖外部集成
type Researcher struct{}

// NewResearcher 创建研究专家
func NewResearcher() *Researcher { return &Researcher{} }

// Descriptor implements Specialist.
func (r *Researcher) Descriptor() Descriptor {
	return Descriptor{
		Name:     "Researcher",
		Category: types.CategoryResearch,
		Stage:    StageExecution,
	}
}

// Run implements Specialist.
func (r *Researcher) Run(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return FromError(err)
	}

	topic := cleanItem(task.Answer)
	if topic == "" {
		topic, _ = topicAfter(task.Intent, researchCues)
	}
	if vagueSubjects[strings.ToLower(topic)] {
		return NeedsInfo("What specific topic would you like me to research?")
	}

	slug := strings.ReplaceAll(strings.ToLower(topic), " ", "-")

	var b strings.Builder
	fmt.Fprintf(&b, "**Research outline: %s**\n\n", topic)
	b.WriteString("Key questions:\n")
	fmt.Fprintf(&b, "1. What is %s and which problem does it solve?\n", topic)
	b.WriteString("2. What are the main approaches or alternatives?\n")
	b.WriteString("3. What are the trade-offs and known pitfalls?\n")
	b.WriteString("4. Who has used it in a setting like yours, and what did they learn?\n\n")

	b.WriteString("Angles to cover:\n")
	fmt.Fprintf(&b, "- Introduction to %s (search: \"%s introduction\")\n", topic, slug)
	fmt.Fprintf(&b, "- Advanced %s techniques (search: \"%s advanced\")\n", topic, slug)
	fmt.Fprintf(&b, "- %s best practices (search: \"%s best practices\")\n\n", topic, slug)

	if task.Upstream != "" {
		fmt.Fprintf(&b, "Keep it relevant to: %s\n\n", truncate(firstLine(task.Upstream), 80))
	}

	b.WriteString("Next steps: timebox 45 minutes for the first pass, note sources as you go, then summarize the answers to the questions above.")

	return Outcome(b.String()).WithAttachment("topic", topic)
}
