package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEmojis is the pool offered to the tagline generator when the PNG for
// each one is present.
var DefaultEmojis = []string{
	"😂", "🥰", "❤️", "😍", "🔥", "✨", "💯", "🎉", "💕", "😊",
	"🙌", "💪", "🌟", "😎", "💖", "👏", "🥳", "😘", "🤗", "😇",
	"🥺", "😭", "🤩", "💥", "😳", "👀", "🤯", "🌹", "🙏", "🥹",
	"💫", "⭐", "🌈", "💎", "👑", "🏆", "🎯", "🚀", "💡", "🎵",
	"👍", "✅", "⚡", "🌸", "🦋", "🍀", "💜", "💙", "💚",
}

// Codepoints returns the Twemoji file stem for an emoji: lower-case hex code
// points joined by "-", without the U+FE0F variation selector.
func Codepoints(emoji string) string {
	parts := make([]string, 0, 2)
	for _, r := range emoji {
		if r == 0xFE0F {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

// EmojiSet maps emoji to colour PNGs found on disk. Emoji without a PNG are
// never offered so the overlay cannot fall back to a monochrome glyph.
type EmojiSet struct {
	dir   string
	paths map[string]string
	order []string
}

// LoadEmojiSet scans dir for <codepoints>.png (either case) for each candidate.
// A missing directory yields an empty set.
func LoadEmojiSet(dir string, candidates []string) *EmojiSet {
	s := &EmojiSet{dir: dir, paths: map[string]string{}}
	if strings.TrimSpace(dir) == "" {
		return s
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return s
	}
	for _, e := range candidates {
		if p, ok := s.lookup(e); ok {
			if _, dup := s.paths[e]; dup {
				continue
			}
			s.paths[e] = p
			s.order = append(s.order, e)
		}
	}
	return s
}

func (s *EmojiSet) lookup(emoji string) (string, bool) {
	code := Codepoints(emoji)
	if code == "" {
		return "", false
	}
	for _, name := range []string{code, strings.ToUpper(code)} {
		p := filepath.Join(s.dir, name+".png")
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Available lists the emoji that have a PNG, in candidate order.
func (s *EmojiSet) Available() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// PNG returns the image path for emoji, checking the directory again for
// emoji outside the scanned candidates.
func (s *EmojiSet) PNG(emoji string) (string, bool) {
	if s == nil || emoji == "" {
		return "", false
	}
	if p, ok := s.paths[emoji]; ok {
		return p, true
	}
	if s.dir == "" {
		return "", false
	}
	return s.lookup(emoji)
}
