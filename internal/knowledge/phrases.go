package knowledge

import "math/rand/v2"

// DefaultWaitPhrases are spoken while documents are fetched.
var DefaultWaitPhrases = []string{
	"One moment while I look that up.",
	"Let me check that for you.",
	"Give me just a second.",
	"Hold on, I'm pulling that up now.",
}

// Phrases picks filler phrases uniformly at random.
type Phrases struct {
	list []string
}

// NewPhrases uses list, or DefaultWaitPhrases when list is empty.
func NewPhrases(list []string) Phrases {
	if len(list) == 0 {
		list = DefaultWaitPhrases
	}
	return Phrases{list: list}
}

// Pick returns one phrase.
func (p Phrases) Pick() string {
	if len(p.list) == 0 {
		return DefaultWaitPhrases[rand.IntN(len(DefaultWaitPhrases))]
	}
	return p.list[rand.IntN(len(p.list))]
}
