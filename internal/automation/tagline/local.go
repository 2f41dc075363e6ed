// Package tagline builds overlay text: the offline template generator used
// when no AI provider answers, plus prompt and response helpers shared by the
// AI adapters.
package tagline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/yungbote/reelforge-backend/internal/automation/stages"
)

var topTemplates = []string{
	"POV: you just discovered %s",
	"%s hits different",
	"Nobody talks about %s enough",
	"This is your sign to try %s",
	"Wait for the %s",
	"Obsessed with this %s",
	"Tell me you love %s without telling me",
	"Daily dose of %s",
	"When the %s is just right",
	"%s but make it iconic",
	"Rate this %s 1-10",
	"Can we talk about this %s?",
}

var bottomTemplates = []string{
	"Follow for more",
	"Save this for later",
	"Send this to your bestie",
	"Drop a comment below",
	"Part 2?",
	"Watch till the end",
}

var defaultWords = []string{"vibe", "moment", "energy", "glow up", "magic"}

// LocalGenerator combines templates with configured words and an optional
// emoji. It never calls the network.
type LocalGenerator struct {
	emojis []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocalGenerator uses emojis as the emoji pool; an empty pool yields
// taglines without emoji.
func NewLocalGenerator(emojis []string) *LocalGenerator {
	return &LocalGenerator{emojis: emojis, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// WithSeed makes generation deterministic.
func (g *LocalGenerator) WithSeed(seed uint64) *LocalGenerator {
	g.mu.Lock()
	g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g.mu.Unlock()
	return g
}

func (g *LocalGenerator) Generate(ctx context.Context, req stages.TaglineRequest) (stages.Tagline, error) {
	if err := ctx.Err(); err != nil {
		return stages.Tagline{}, err
	}
	out := g.Bulk(req, 1)
	if len(out) == 0 {
		return stages.Tagline{}, fmt.Errorf("local tagline: %w", stages.ErrProvider)
	}
	return out[0], nil
}

// Bulk returns up to count distinct taglines (clamped to 1..50), preferring
// combinations whose top line is not in req.Recent.
func (g *LocalGenerator) Bulk(req stages.TaglineRequest, count int) []stages.Tagline {
	if count < 1 {
		count = 1
	}
	if count > 50 {
		count = 50
	}
	words := req.Words
	if len(words) == 0 {
		words = defaultWords
	}
	recent := make(map[string]struct{}, len(req.Recent))
	for _, r := range req.Recent {
		if t, ok := ParseMessage(r); ok {
			r = t.Top
		}
		recent[normalize(r)] = struct{}{}
	}

	type combo struct{ tpl, word int }
	combos := make([]combo, 0, len(topTemplates)*len(words))
	for i := range topTemplates {
		for j := range words {
			combos = append(combos, combo{i, j})
		}
	}

	g.mu.Lock()
	g.rng.Shuffle(len(combos), func(i, j int) { combos[i], combos[j] = combos[j], combos[i] })
	pick := func(n int) int { return g.rng.IntN(n) }
	var fresh, stale []stages.Tagline
	for _, c := range combos {
		t := stages.Tagline{Top: fmt.Sprintf(topTemplates[c.tpl], strings.TrimSpace(words[c.word]))}
		t.Top = capitalize(t.Top)
		if req.BrandingBottom != "" {
			t.Bottom = req.BrandingBottom
		} else {
			t.Bottom = bottomTemplates[pick(len(bottomTemplates))]
		}
		if len(g.emojis) > 0 {
			t.Emoji = g.emojis[pick(len(g.emojis))]
		}
		if _, used := recent[normalize(t.Top)]; used {
			stale = append(stale, t)
		} else {
			fresh = append(fresh, t)
		}
	}
	g.mu.Unlock()

	out := append(fresh, stale...)
	if len(out) > count {
		out = out[:count]
	}
	return out
}

// RandomWord picks one configured word, or "" when there are none.
func (g *LocalGenerator) RandomWord(words []string) string {
	if len(words) == 0 {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return strings.TrimSpace(words[g.rng.IntN(len(words))])
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
