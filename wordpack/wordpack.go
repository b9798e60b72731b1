// Package wordpack loads and queries the word lists the game draws from.
// A pack file starts with a name line and a description line; every
// following line holds a primary word optionally followed by accepted
// alternates, comma separated.
package wordpack

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

type entry struct {
	word       string
	alternates []string
}

type Pack struct {
	name        string
	description string
	entries     []entry
}

var ErrTooShort = errors.New("word pack needs a name line, a description line and at least one word")

// Parse reads a pack from its file contents. Words are lowercased and
// trimmed so matching against normalized guesses is a plain comparison.
// The tracker spots primaries repeated across packs; duplicates within a
// pack are skipped, duplicates across packs are kept but logged.
func Parse(contents string, tracker map[string]struct{}) (*Pack, error) {
	lines := strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return nil, ErrTooShort
	}
	pack := &Pack{
		name:        strings.TrimSpace(lines[0]),
		description: strings.TrimSpace(lines[1]),
	}
	for _, line := range lines[2:] {
		parts := make([]string, 0, 4)
		for _, part := range strings.Split(line, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}
		word := parts[0]
		if pack.contains(word) {
			log.Warn().Str("pack", pack.name).Str("word", word).Msg("Duplicate word in pack, skipping")
			continue
		}
		if _, seen := tracker[word]; seen {
			log.Warn().Str("pack", pack.name).Str("word", word).Msg("Word already present in another pack, keeping anyway")
		} else {
			tracker[word] = struct{}{}
		}
		pack.entries = append(pack.entries, entry{word: word, alternates: parts[1:]})
	}
	if len(pack.entries) == 0 {
		return nil, ErrTooShort
	}
	return pack, nil
}

func (p *Pack) contains(word string) bool {
	for _, e := range p.entries {
		if e.word == word {
			return true
		}
	}
	return false
}

// LoadDir reads every regular file of dir as a word pack, in file name
// order so pack indices are stable across restarts.
func LoadDir(dir string) ([]*Pack, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, file := range files {
		if file.Type().IsRegular() {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)
	tracker := make(map[string]struct{})
	packs := make([]*Pack, 0, len(names))
	for _, name := range names {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pack, err := Parse(string(contents), tracker)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("pack", pack.name).Int("words", pack.Count()).Msg("Loaded word pack")
		packs = append(packs, pack)
	}
	return packs, nil
}

func (p *Pack) Name() string {
	return p.name
}

func (p *Pack) Description() string {
	return p.description
}

func (p *Pack) Count() int {
	return len(p.entries)
}

func (p *Pack) Word(index int) string {
	return p.entries[index].word
}

func (p *Pack) Alternate(index, alternate int) string {
	return p.entries[index].alternates[alternate]
}

// Matches reports whether a normalized guess hits the word at index. The
// second result is the index of the matched alternate, or -1 when the
// primary word itself matched or nothing did.
func (p *Pack) Matches(index int, guess string) (bool, int) {
	e := p.entries[index]
	if e.word == guess {
		return true, -1
	}
	for i, alternate := range e.alternates {
		if alternate == guess {
			return true, i
		}
	}
	return false, -1
}
