package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/dailycrew/types"
)

var motivationalMessages = []string{
	"Remember that progress isn't always linear. Small steps forward still count as progress!",
	"Taking short breaks can actually boost your productivity. Consider the Pomodoro technique.",
	"You've overcome challenges before, and you can do it again. I believe in your abilities!",
	"Focus on what you can control, and try not to worry about what you can't.",
	"It's okay to ask for help when you need it. That's a sign of strength, not weakness.",
	"Remember your 'why', the purpose behind what you're working on.",
	"Celebrate your small wins along the way. They add up to big accomplishments!",
	"Your worth isn't measured by your productivity. It's okay to have off days.",
	"Try breaking down your task into smaller, more manageable pieces.",
	"Sometimes a change of environment can help refresh your perspective.",
}

var wellbeingActivities = []string{
	"**Take a 5-minute mindfulness break**\nFind a quiet spot, close your eyes, and focus on your breathing for 5 minutes.",
	"**Stretch break**\nStand up and do some gentle stretches to release tension in your neck, shoulders, and back.",
	"**Hydration check**\nTake a moment to drink a glass of water and make sure you're staying hydrated.",
	"**Quick walk**\nStep outside for a 5-10 minute walk to get some fresh air and movement.",
	"**Gratitude moment**\nTake a minute to write down or think about three things you're grateful for today.",
	"**Digital detox**\nTake a 15-minute break from all screens to rest your eyes and mind.",
	"**Deep breathing**\nPractice 4-7-8 breathing: inhale for 4 seconds, hold for 7, exhale for 8.",
	"**Desk organization**\nTake a few minutes to tidy your workspace, which can help clear your mind.",
}

var stressTips = []string{
	"Practice progressive muscle relaxation: tense and then release each muscle group in your body.",
	"Try the 5-4-3-2-1 grounding technique: name 5 things you can see, 4 you can touch, 3 you can hear, 2 you can smell, and 1 you can taste.",
	"Write down what's stressing you out, then list which parts you can control and which you can't.",
	"Take a few minutes to listen to calming music or nature sounds.",
	"Try a quick visualization: imagine yourself in a peaceful place for a few minutes.",
	"Practice saying 'no' to additional commitments when your plate is already full.",
	"Break down overwhelming tasks into smaller, more manageable steps.",
	"Limit caffeine later in the day, as it can increase anxiety.",
	"Set boundaries around checking email and messages to reduce constant interruptions.",
	"Remember that it's okay to ask for help or delegate tasks when possible.",
}

var achievementMessages = []string{
	"Great job on %s! Your hard work is paying off.",
	"Congratulations on %s! That's a significant accomplishment.",
	"Awesome work on %s! You should be proud of yourself.",
	"You did it! %s is complete, and that's worth celebrating.",
	"Excellent work completing %s! Your dedication is impressive.",
}

var achievementCues = []string{"finished", "completed", "shipped", "done with", "released", "merged"}

// Motivator 激励专家，总是在最后执行，可以引用前面专家的结果
type Motivator struct{}

// NewMotivator 创建激励专家
func NewMotivator() *Motivator { return &Motivator{} }

// Descriptor implements Specialist.
func (m *Motivator) Descriptor() Descriptor {
	return Descriptor{
		Name:     "Motivator",
		Category: types.CategoryMotivation,
		Stage:    StageReflection,
	}
}

// Run implements Specialist.
func (m *Motivator) Run(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return FromError(err)
	}

	text := strings.TrimSpace(task.Intent + " " + task.Answer)
	seed := text + "|" + task.Now.Format("2006-01-02")

	var b strings.Builder
	switch {
	case containsAny(text, "stress", "overwhelm", "anxious", "anxiety", "burn", "pressure", "panic"):
		fmt.Fprintf(&b, "**Stress Management Tip:** %s", pick(stressTips, seed))
	case containsAny(text, "tired", "exhausted", "need a break", "take a break", "drained", "sleepy"):
		fmt.Fprintf(&b, "**Wellbeing Suggestion:** %s", pick(wellbeingActivities, seed))
	default:
		if what, ok := topicAfter(text, achievementCues); ok && what != "" {
			fmt.Fprintf(&b, pick(achievementMessages, seed), what)
		} else {
			b.WriteString(pick(motivationalMessages, seed))
		}
	}

	if task.Upstream != "" {
		b.WriteString("\n\nYou already have the next steps laid out above. Pick the first one and start small.")
	}
	return Outcome(b.String())
}
