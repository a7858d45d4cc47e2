package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/guilhermexp/kasane/internal/models"
	"github.com/guilhermexp/kasane/pkg/utils"
)

// NoRelevantEntries is the sentinel context text when nothing clears
// the relevance floor. It is a valid result, not an error.
const NoRelevantEntries = "No highly relevant journal entries found for this question."

const blockSeparator = "\n\n---\n\n"

// BuildRetrievalQuery concatenates the trailing user turns and the
// current message into one normalized retrieval query, capped at
// maxChars. Returns "" when there is nothing to search for.
func BuildRetrievalQuery(history []models.ChatTurn, message string, window, maxChars int) string {
	var parts []string
	var userTurns []string
	for _, turn := range history {
		if turn.Role == "user" {
			if text := utils.CollapseWhitespace(turn.Content); text != "" {
				userTurns = append(userTurns, text)
			}
		}
	}
	if window > 0 && len(userTurns) > window {
		userTurns = userTurns[len(userTurns)-window:]
	}
	parts = append(parts, userTurns...)
	if current := utils.CollapseWhitespace(message); current != "" {
		parts = append(parts, current)
	}
	return utils.Clip(strings.Join(parts, "\n"), maxChars)
}

// BuildContext assembles the bounded journal context for one chat turn.
// The pipeline is: window the history into a query, vector-search,
// dedupe by ref, drop hits under the relevance floor, cap the entry
// count, then greedily append per-entry thread texts until the next
// block would exceed the total budget. A failed query embedding
// surfaces as an empty hit set, so the chat proceeds without context.
func (e *Engine) BuildContext(ctx context.Context, message string, history []models.ChatTurn, memory *models.MemoryContext) *models.Context {
	query := BuildRetrievalQuery(history, message, e.cfg.HistoryWindow, e.cfg.MaxQueryChars)

	var hits []models.ScoredEntry
	if query != "" {
		found, err := e.coord.VectorSearch(ctx, query, e.cfg.TopN)
		if err != nil {
			e.logger.Warn("vector search failed, building context without retrieval", zap.Error(err))
		} else {
			hits = found
		}
	}

	// Dedupe by ref; input is sorted by score, so first occurrence wins.
	seen := make(map[string]bool, len(hits))
	selected := make([]models.ScoredEntry, 0, len(hits))
	for _, hit := range hits {
		if hit.Ref == "" || seen[hit.Ref] {
			continue
		}
		seen[hit.Ref] = true
		if hit.Score < e.cfg.RelevanceFloor || math.IsNaN(hit.Score) {
			continue
		}
		selected = append(selected, hit)
		if len(selected) == e.cfg.MaxContextEntries {
			break
		}
	}

	paths := make([]string, len(selected))
	for i, hit := range selected {
		paths[i] = hit.Ref
	}
	threads := e.coord.GetThreadsAsText(paths)

	result := &models.Context{}
	usedChars := 0
	for i, hit := range selected {
		text := utils.CollapseWhitespace(threads[i])
		if text == "" {
			continue
		}
		text = utils.Clip(text, e.cfg.MaxEntryChars)
		block := models.ContextBlock{
			Index:     len(result.Blocks) + 1,
			Ref:       hit.Ref,
			Relevance: fmt.Sprintf("%d%%", int(math.Round(hit.Score*100))),
			Text:      text,
		}
		rendered := renderBlock(block)
		if usedChars+len(rendered) > e.cfg.MaxTotalContextChars {
			break
		}
		result.Blocks = append(result.Blocks, block)
		usedChars += len(rendered)
	}

	if len(result.Blocks) == 0 {
		result.Text = NoRelevantEntries
	} else {
		rendered := make([]string, len(result.Blocks))
		for i, block := range result.Blocks {
			rendered[i] = renderBlock(block)
		}
		result.Text = strings.Join(rendered, blockSeparator)
	}

	result.MemoryText = e.renderMemory(memory)
	return result
}

func renderBlock(b models.ContextBlock) string {
	return fmt.Sprintf("[Entry %d | relevance %s]\n%s", b.Index, b.Relevance, b.Text)
}

// renderMemory bounds and labels the externally built persistent-memory
// sections. Their contents are never re-scored or reordered here.
func (e *Engine) renderMemory(memory *models.MemoryContext) string {
	if memory == nil {
		return ""
	}
	var sections []string
	if recent := strings.TrimSpace(memory.Recent); recent != "" {
		sections = append(sections, "Persistent memory (recent):\n"+utils.Clip(recent, e.cfg.MemorySectionMaxChars))
	}
	if semantic := strings.TrimSpace(memory.Semantic); semantic != "" {
		sections = append(sections, "Persistent memory (semantic):\n"+utils.Clip(semantic, e.cfg.MemorySectionMaxChars))
	}
	return strings.Join(sections, "\n\n")
}

// joinBlocks normalizes and joins thread texts for the latest-threads
// digest.
func joinBlocks(threads []string) string {
	var parts []string
	for _, t := range threads {
		if text := utils.CollapseWhitespace(t); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, blockSeparator)
}
