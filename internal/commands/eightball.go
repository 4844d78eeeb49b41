package commands

import (
	"fmt"
	"math/rand"
	"strings"

	"sombot/internal/twitch"
)

// eightBallResponses is grouped so each mood is equally likely regardless
// of how many phrasings it has.
var eightBallResponses = [][]string{
	{ // affirmative
		"It is certain.",
		"It is decidedly so.",
		"Without a doubt.",
		"Yes definitely.",
		"You may rely on it.",
		"As I see it, yes.",
		"Most likely.",
		"Outlook good.",
		"Yes.",
		"Signs point to yes.",
	},
	{ // negative
		"Don't count on it.",
		"My reply is no.",
		"My sources say no.",
		"Outlook not so good.",
		"Very doubtful.",
	},
	{ // neutral
		"Reply hazy, try again.",
		"Ask again later.",
		"Better not tell you now.",
		"Cannot predict now.",
		"Concentrate and ask again.",
	},
	{ // uncertain
		"Maybe...",
		"I'm not sure about that.",
		"The answer is unclear.",
		"Could go either way.",
		"The future is uncertain on this.",
	},
}

// EightBallCommand answers yes/no questions with Magic 8-Ball wisdom.
type EightBallCommand struct {
	// pick returns a random int in [0, n), overridable in tests.
	pick func(n int) int
}

// NewEightBallCommand creates the command with the default random source.
func NewEightBallCommand() *EightBallCommand {
	return &EightBallCommand{pick: rand.Intn}
}

func (c *EightBallCommand) Execute(msg *twitch.ChatMessage, args []string) (string, error) {
	if len(args) == 0 {
		return "Ask me a question and I shall reveal your fate!", nil
	}

	question := strings.Join(args, " ")
	group := eightBallResponses[c.pick(len(eightBallResponses))]
	answer := group[c.pick(len(group))]

	return fmt.Sprintf("@%s asked: %s 🎱 %s", msg.DisplayName, question, answer), nil
}

func (c *EightBallCommand) Help() string {
	return "Ask the Magic 8-Ball a yes/no question. Usage: !8ball <question>"
}
