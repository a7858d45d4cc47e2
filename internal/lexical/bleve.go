package lexical

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/char/asciifolding"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/text/unicode/norm"

	"github.com/guilhermexp/kasane/internal/models"
)

const entryAnalyzer = "entry"

// entryDoc is the shape handed to bleve per entry.
type entryDoc struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// BleveIndex implements Index using Bleve with a diacritics-folding
// analyzer, so queries and entries tokenize identically (lowercase,
// punctuation-stripped, accents folded).
type BleveIndex struct {
	index      bleve.Index
	titleBoost float64

	mu sync.RWMutex
	// updated tracks each indexed entry's UpdatedAt for the documented
	// recency tie-break.
	updated map[string]time.Time
}

// NewBleveIndex creates or opens a Bleve index at path with the entry
// mapping. titleBoost multiplies the score contribution of title
// matches; values <= 0 fall back to 1.
func NewBleveIndex(path string, titleBoost float64) (*BleveIndex, error) {
	if titleBoost <= 0 {
		titleBoost = 1
	}

	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(entryAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"char_filters":  []interface{}{asciifolding.Name},
		"tokenizer":     bleveunicode.Name,
		"token_filters": []interface{}{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = entryAnalyzer

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("body", textField)
	docMapping.AddFieldMappingsAt("tags", textField)
	im.DefaultMapping = docMapping

	var index bleve.Index
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open lexical index: %w", err)
		}
	} else {
		index, err = bleve.New(path, im)
		if err != nil {
			return nil, fmt.Errorf("failed to create lexical index: %w", err)
		}
	}
	return &BleveIndex{
		index:      index,
		titleBoost: titleBoost,
		updated:    make(map[string]time.Time),
	}, nil
}

// Index adds or replaces the entry at path.
func (b *BleveIndex) Index(path string, entry *models.EntryBody) error {
	if err := b.index.Index(path, entryDoc{
		Title: entry.Title,
		Body:  entry.Body,
		Tags:  entry.Tags,
	}); err != nil {
		return fmt.Errorf("lexical index %s: %w", path, err)
	}
	b.mu.Lock()
	b.updated[path] = entry.UpdatedAt
	b.mu.Unlock()
	return nil
}

// Remove deletes the entry at path.
func (b *BleveIndex) Remove(path string) error {
	if err := b.index.Delete(path); err != nil {
		return fmt.Errorf("lexical remove %s: %w", path, err)
	}
	b.mu.Lock()
	delete(b.updated, path)
	b.mu.Unlock()
	return nil
}

// Search runs the query against title, body, and tags. Scores are
// normalized by the best hit so results are in [0,1]; equal scores are
// ordered by UpdatedAt descending, then path, so repeated searches are
// deterministic.
func (b *BleveIndex) Search(query string, limit int) ([]models.SearchHit, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}
	normalized := strings.Join(terms, " ")

	fields := []blevequery.Query{
		b.fieldQuery("title", normalized, b.titleBoost),
		b.fieldQuery("body", normalized, 1),
		b.fieldQuery("tags", normalized, 1),
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(fields...))
	req.Size = limit

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	maxScore := res.Hits[0].Score
	for _, hit := range res.Hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	hits := make([]models.SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		score := 0.0
		if maxScore > 0 {
			score = hit.Score / maxScore
		}
		hits = append(hits, models.SearchHit{Ref: hit.ID, Score: score, Source: models.SourceLexical})
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		ti, tj := b.updated[hits[i].Ref], b.updated[hits[j].Ref]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return hits[i].Ref < hits[j].Ref
	})
	return hits, nil
}

func (b *BleveIndex) fieldQuery(field, query string, boost float64) blevequery.Query {
	q := bleve.NewMatchQuery(query)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

// DocCount returns the number of indexed entries.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// Tokenize normalizes query text the same way entries are analyzed:
// lowercase, accents folded, split on anything that is not a letter or
// digit. Returned terms are never empty.
func Tokenize(s string) []string {
	folded := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.Is(unicode.Mn, r):
			// drop combining marks left by the NFD decomposition
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}
