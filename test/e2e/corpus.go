// Package e2e exercises the full pile, index, and retrieval stack over a
// generated journal corpus.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JournalEntry is one generated corpus entry. Signature is a phrase that
// appears only in this entry, so queries can assert the right entry comes
// back.
type JournalEntry struct {
	Path      string
	Title     string
	Body      string
	CreatedAt time.Time
	Replies   []string
}

// QueryCase defines a search query and the entry path(s) that must appear
// in the results. At least one of ExpectedRefs must be present.
type QueryCase struct {
	Query        string
	ExpectedRefs []string
	Description  string
}

// ContextCase defines a chat message and whether the assembled context
// must fall back to the no-relevant-entries sentinel.
type ContextCase struct {
	Message      string
	WantSentinel bool
	Description  string
}

// Corpus holds the generated entries and the cases that run against them.
type Corpus struct {
	Entries      []JournalEntry
	QueryCases   []QueryCase
	ContextCases []ContextCase
}

// BuildCorpus generates a journal of dated entries with unique signature
// phrases, some threaded with replies, plus the query and context cases
// that assert on them.
func BuildCorpus() *Corpus {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	topics := []struct {
		title     string
		signature string
		body      string
	}{
		{"Lisbon Trip", "pastel de nata in Belém", "Spent the morning walking the Alfama hills. Found the best pastel de nata in Belém and ate three of them."},
		{"Garden Notes", "tomato seedlings sprouted", "The tomato seedlings sprouted over the weekend. Need to thin them out before they crowd each other."},
		{"Marathon Training", "eighteen mile long run", "Finished the eighteen mile long run along the river path. Legs held up better than last month."},
		{"Book Club", "finished reading Middlemarch", "Finally finished reading Middlemarch after two months. The group meets Thursday to discuss it."},
		{"Kitchen Project", "sourdough starter bubbling", "The sourdough starter is bubbling again after the fridge mishap. First loaf attempt this weekend."},
		{"Work Reflections", "quarterly planning offsite", "The quarterly planning offsite went long but we settled the roadmap. I pushed for the migration work."},
		{"Piano Practice", "Chopin nocturne opus nine", "Worked through the Chopin nocturne opus nine slowly. The left hand arpeggios are finally settling in."},
		{"Camping Weekend", "tent by the alpine lake", "Pitched the tent by the alpine lake before the rain came in. Woke up to frost on the fly."},
		{"Language Study", "hiragana flashcard streak", "Kept the hiragana flashcard streak alive, day forty. Starting katakana next week."},
		{"Home Repair", "leaking bathroom faucet", "Fixed the leaking bathroom faucet with a new cartridge. The shutoff valve needs replacing too."},
		{"Cycling Log", "gravel route past the orchards", "Rode the gravel route past the orchards, fifty kilometers. The new tires handled the washboard fine."},
		{"Therapy Notes", "boundaries with my brother", "Talked about boundaries with my brother again. Practicing saying no without the long justification."},
		{"Photography Walk", "golden hour at the pier", "Caught golden hour at the pier with the fifty millimeter. The fog rolled in right as the light peaked."},
		{"Budget Review", "grocery spending crept up", "Monthly review done. Grocery spending crept up twenty percent, mostly takeout mislabeled as groceries."},
		{"Meditation Log", "ten minute morning sit", "Kept the ten minute morning sit every day this week. Mind quieter by Thursday."},
		{"Pottery Class", "first glazed bowl survived", "My first glazed bowl survived the kiln. The blue ran more than expected but I like it."},
		{"Job Search", "systems role second interview", "The systems role second interview went well. Take-home exercise due Monday."},
		{"Dog Training", "recall practice at the park", "Recall practice at the park is paying off. She came back past two squirrels today."},
		{"Astronomy Night", "saw the Orion nebula", "Clear skies finally. Saw the Orion nebula through the new eyepiece, faint but unmistakable."},
		{"Cooking Experiment", "miso butter pasta", "Tried the miso butter pasta from the video. Needs less butter and more of the pasta water."},
		{"Running Injury", "tight left achilles", "The tight left achilles flared up again after hills. Swapping Thursday for a pool session."},
		{"Family Call", "grandmother's dumpling recipe", "Mom walked me through grandmother's dumpling recipe on the call. Wrote down the folding trick this time."},
		{"Woodworking", "dovetail joints by hand", "Cut my first dovetail joints by hand. Two gaps, one tight fit. The marking gauge makes the difference."},
		{"Winter Swim", "cold plunge at the lido", "Did the cold plunge at the lido, four minutes. The shivering after is the hard part."},
	}

	entries := make([]JournalEntry, 0, len(topics)+4)
	for i, topic := range topics {
		entries = append(entries, JournalEntry{
			Path:      fmt.Sprintf("2024/%02d-%s.md", i+1, slugify(topic.title)),
			Title:     topic.title,
			Body:      topic.body,
			CreatedAt: base.AddDate(0, 0, i),
		})
	}

	// Thread the first two entries with replies; replies embed through
	// their parent, never on their own.
	entries[0].Replies = []string{"2024/replies/lisbon-r1.md"}
	entries = append(entries, JournalEntry{
		Path:      "2024/replies/lisbon-r1.md",
		Body:      "Went back for the pastéis the next morning. Queue around the block, still worth it.",
		CreatedAt: base.Add(26 * time.Hour),
	})
	entries[1].Replies = []string{"2024/replies/garden-r1.md", "2024/replies/garden-r2.md"}
	entries = append(entries,
		JournalEntry{
			Path:      "2024/replies/garden-r1.md",
			Body:      "Thinned the seedlings down to the six strongest.",
			CreatedAt: base.AddDate(0, 0, 3),
		},
		JournalEntry{
			Path:      "2024/replies/garden-r2.md",
			Body:      "First true leaves on all six. Moving them to the cold frame.",
			CreatedAt: base.AddDate(0, 0, 6),
		},
	)

	queryCases := []QueryCase{
		{"pastel de nata", []string{"2024/01-lisbon-trip.md"}, "signature phrase finds the lisbon entry"},
		{"tomato seedlings", []string{"2024/02-garden-notes.md"}, "signature phrase finds the garden entry"},
		{"Chopin nocturne", []string{"2024/07-piano-practice.md"}, "proper noun query"},
		{"dovetail", []string{"2024/23-woodworking.md"}, "single rare term"},
		{"achilles", []string{"2024/21-running-injury.md"}, "body-only term"},
		{"Orion nebula", []string{"2024/19-astronomy-night.md"}, "two-word phrase"},
		{"dumpling recipe", []string{"2024/22-family-call.md"}, "family entry by its dish"},
		{"miso butter", []string{"2024/20-cooking-experiment.md"}, "recipe signature"},
	}

	contextCases := []ContextCase{
		{"what did I eat in Lisbon?", false, "question over an indexed corpus yields blocks"},
		{"how is the garden doing?", false, "a second question also yields blocks"},
		{"", true, "empty message produces the sentinel"},
	}

	return &Corpus{Entries: entries, QueryCases: queryCases, ContextCases: contextCases}
}

// WriteTo materializes the corpus as entry files under root, the way a
// real journal directory looks on disk.
func (c *Corpus) WriteTo(root string) error {
	for _, entry := range c.Entries {
		full := filepath.Join(root, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(renderEntry(entry)), 0644); err != nil {
			return err
		}
	}
	return nil
}

func renderEntry(e JournalEntry) string {
	var b strings.Builder
	b.WriteString("---\n")
	if e.Title != "" {
		fmt.Fprintf(&b, "title: %s\n", e.Title)
	}
	fmt.Fprintf(&b, "createdAt: %s\n", e.CreatedAt.Format("2006-01-02T15:04:05.000Z"))
	if strings.Contains(e.Path, "/replies/") {
		b.WriteString("isReply: true\n")
	}
	if len(e.Replies) > 0 {
		b.WriteString("replies:\n")
		for _, r := range e.Replies {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	b.WriteString("---\n")
	b.WriteString(e.Body)
	b.WriteString("\n")
	return b.String()
}

func slugify(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
