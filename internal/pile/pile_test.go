package pile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guilhermexp/kasane/internal/embedding"
	"github.com/guilhermexp/kasane/internal/lexical"
	"github.com/guilhermexp/kasane/internal/models"
	"github.com/guilhermexp/kasane/internal/storage"
	"github.com/guilhermexp/kasane/internal/store"
)

// newTestPile wires a pile over real stores in dataDir. The returned
// close func releases the bleve and sqlite handles so a second pile can
// reopen the same data, as happens across app restarts.
func newTestPile(t *testing.T, root, dataDir string, embedder embedding.Embedder) (*Pile, func()) {
	t.Helper()
	docs, err := store.NewFileStore(root)
	if err != nil {
		t.Fatal(err)
	}
	snapshot, err := storage.NewSQLiteStore(filepath.Join(dataDir, "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	lex, err := lexical.NewBleveIndex(filepath.Join(dataDir, "bleve"), 3.0)
	if err != nil {
		t.Fatal(err)
	}
	p := New(docs, snapshot, lex, embedder, Config{
		VectorSnapshotPath: filepath.Join(dataDir, "embeddings.bin"),
		EmbedTimeout:       5 * time.Second,
	})
	closed := false
	closeFn := func() {
		if closed {
			return
		}
		closed = true
		_ = lex.Close()
		_ = snapshot.Close()
	}
	t.Cleanup(closeFn)
	return p, closeFn
}

func entryContent(title, createdAt string, isReply bool, replies []string, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	if title != "" {
		fmt.Fprintf(&b, "title: %s\n", title)
	}
	fmt.Fprintf(&b, "createdAt: %s\n", createdAt)
	if isReply {
		b.WriteString("isReply: true\n")
	}
	if len(replies) > 0 {
		b.WriteString("replies:\n")
		for _, r := range replies {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	b.WriteString("---\n")
	b.WriteString(body)
	b.WriteString("\n")
	return b.String()
}

func writeEntry(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPile_Load(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("Groceries", "2024-01-01T10:00:00Z", false, []string{"r1.md"}, "buy milk and bread"))
	writeEntry(t, root, "r1.md", entryContent("", "2024-01-01T11:00:00Z", true, nil, "got the bread"))
	writeEntry(t, root, "b.md", entryContent("Evening", "2024-01-02T10:00:00Z", false, nil, "walk the dog in the park"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 3 || report.Skipped != 0 || report.Removed != 0 {
		t.Errorf("report: %+v", report)
	}

	status := p.Status()
	if status.Entries != 3 || status.Threads != 2 {
		t.Errorf("status counts: %+v", status)
	}
	// Replies are embedded with their parent thread, not separately.
	if status.Vectors != 2 {
		t.Errorf("expected 2 vectors (thread roots only), got %d", status.Vectors)
	}
	if !status.VectorReady {
		t.Error("vector search should be ready")
	}

	hits, err := p.LexicalSearch("milk", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Ref != "a.md" {
		t.Errorf("lexical hits: %v", hits)
	}

	vhits, err := p.VectorSearch(context.Background(), "groceries shopping", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(vhits) != 2 {
		t.Errorf("expected semantic hits for both threads, got %d", len(vhits))
	}

	// Get returns newest creation first.
	entries := p.Get()
	if len(entries) != 3 || entries[0].Path != "b.md" {
		t.Errorf("get order: %v", entries)
	}
}

func TestPile_LoadUnchanged(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "some text"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 0 || report.Unchanged != 1 {
		t.Errorf("second load should see no changes: %+v", report)
	}
}

func TestPile_LoadSkipsUnreadable(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "good.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "fine"))
	writeEntry(t, root, "broken.md", "no front matter here\n")

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 1 || report.Skipped != 1 {
		t.Errorf("report: %+v", report)
	}
	if status := p.Status(); status.Entries != 1 {
		t.Errorf("broken entry must not be registered: %+v", status)
	}
}

func TestPile_LoadMissingRoot(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}

	_, err := p.Load(context.Background())
	var loadErr *models.IndexLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected IndexLoadError, got %v", err)
	}
}

func TestPile_AddIsIdempotent(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeEntry(t, root, "a.md", entryContent("Solo", "2024-01-01T10:00:00Z", false, nil, "a single entry"))
	if err := p.Add(context.Background(), "a.md"); err != nil {
		t.Fatal(err)
	}
	if err := p.Add(context.Background(), "a.md"); err != nil {
		t.Fatal(err)
	}

	status := p.Status()
	if status.Entries != 1 || status.Vectors != 1 {
		t.Errorf("double add must not duplicate: %+v", status)
	}
	hits, _ := p.LexicalSearch("single", 10)
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestPile_UpdateReindexes(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("Original", "2024-01-01T10:00:00Z", false, nil, "ancient words"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeEntry(t, root, "a.md", entryContent("Rewritten", "2024-01-01T10:00:00Z", false, nil, "fresh words"))
	if err := p.Update(context.Background(), "a.md"); err != nil {
		t.Fatal(err)
	}

	if hits, _ := p.LexicalSearch("ancient", 10); len(hits) != 0 {
		t.Errorf("stale terms still indexed: %v", hits)
	}
	hits, _ := p.LexicalSearch("fresh", 10)
	if len(hits) != 1 || hits[0].Ref != "a.md" {
		t.Errorf("new terms not indexed: %v", hits)
	}
	entry, ok := p.Entry("a.md")
	if !ok || entry.Title != "Rewritten" {
		t.Errorf("metadata not refreshed: %+v", entry)
	}
}

func TestPile_UpdateUnreadable(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := p.Update(context.Background(), "missing.md")
	var readErr *models.EntryReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected EntryReadError, got %v", err)
	}
}

func TestPile_RemovePurgesEverywhere(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("Keep", "2024-01-01T10:00:00Z", false, nil, "staying entry"))
	writeEntry(t, root, "b.md", entryContent("Drop", "2024-01-02T10:00:00Z", false, nil, "leaving entry"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove(context.Background(), "b.md"); err != nil {
		t.Fatal(err)
	}

	status := p.Status()
	if status.Entries != 1 || status.Vectors != 1 {
		t.Errorf("status after remove: %+v", status)
	}
	if hits, _ := p.LexicalSearch("leaving", 10); len(hits) != 0 {
		t.Errorf("removed entry still in lexical index: %v", hits)
	}
	vhits, _ := p.VectorSearch(context.Background(), "leaving entry", 10)
	for _, h := range vhits {
		if h.Ref == "b.md" {
			t.Error("removed entry still in vector index")
		}
	}

	// Removing an unknown path is a no-op.
	if err := p.Remove(context.Background(), "never-was.md"); err != nil {
		t.Fatal(err)
	}
}

func TestPile_ReloadFromSnapshot(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "persisted entry"))

	p1, close1 := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p1.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	close1()

	p2, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	report, err := p2.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 0 || report.Unchanged != 1 {
		t.Errorf("restart with unchanged corpus should re-embed nothing: %+v", report)
	}
	if status := p2.Status(); status.Vectors != 1 || !status.VectorReady {
		t.Errorf("vectors not restored from snapshot: %+v", status)
	}
}

func TestPile_StaleModelDisablesVectorSearch(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "searchable text"))

	p1, close1 := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p1.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	close1()

	// Same data, different embedding model.
	p2, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-b", 8))
	report, err := p2.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.StaleModel == nil {
		t.Fatal("expected stale model report")
	}
	if p2.StaleModel() == nil {
		t.Error("StaleModel should be exposed after load")
	}
	if status := p2.Status(); status.VectorReady {
		t.Error("vector search must be disabled on model mismatch")
	}

	// Lexical search keeps working while vector search degrades to empty.
	if hits, _ := p2.LexicalSearch("searchable", 10); len(hits) != 1 {
		t.Errorf("lexical should be unaffected: %v", hits)
	}
	vhits, err := p2.VectorSearch(context.Background(), "searchable text", 10)
	if err != nil {
		t.Fatal(err)
	}
	if vhits != nil {
		t.Errorf("vector search should return empty while stale: %v", vhits)
	}

	// Regeneration re-enables vector search under the new model.
	if err := p2.RegenerateEmbeddings(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p2.StaleModel() != nil {
		t.Error("stale flag should clear after regeneration")
	}
	status := p2.Status()
	if !status.VectorReady || status.Vectors != 1 {
		t.Errorf("status after regen: %+v", status)
	}
	vhits, err = p2.VectorSearch(context.Background(), "searchable text", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(vhits) != 1 {
		t.Errorf("expected vector hits after regen, got %d", len(vhits))
	}
}

func TestPile_RegenerateCancelKeepsPreviousVectors(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "stable text"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.RegenerateEmbeddings(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}

	status := p.Status()
	if !status.VectorReady || status.Vectors != 1 {
		t.Errorf("cancelled regen must keep the previous vector set: %+v", status)
	}
	if status.RegenJob != "" {
		t.Error("job id should clear after the run ends")
	}
}

// gateEmbedder delegates to a mock but can hold Embed calls on a
// channel so a regeneration stays in flight for the duration of a test.
type gateEmbedder struct {
	*embedding.MockEmbedder
	mu   sync.Mutex
	gate chan struct{}
}

func (g *gateEmbedder) hold() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	return g.gate
}

func (g *gateEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return g.MockEmbedder.Embed(ctx, text)
}

func TestPile_StartRegenerationClaimsJobBeforeRunning(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "stable text"))

	emb := &gateEmbedder{MockEmbedder: embedding.NewMockEmbedder("model-a", 8)}
	p, _ := newTestPile(t, root, dataDir, emb)
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := emb.hold()
	job, err := p.StartRegeneration()
	if err != nil {
		t.Fatal(err)
	}
	if job == "" {
		t.Fatal("expected a job id")
	}
	// The claim happens before the background batch runs, so the job is
	// visible immediately and a second start is refused.
	if got := p.RegenJob(); got != job {
		t.Errorf("job not claimed synchronously: got %q, want %q", got, job)
	}
	if _, err := p.StartRegeneration(); !errors.Is(err, ErrRegenerationRunning) {
		t.Errorf("second start: got %v, want ErrRegenerationRunning", err)
	}

	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for p.RegenJob() != "" {
		if time.Now().After(deadline) {
			t.Fatal("regeneration did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	status := p.Status()
	if !status.VectorReady || status.Vectors != 1 {
		t.Errorf("unexpected state after regeneration: %+v", status)
	}
}

func TestPile_RegenerateRefusedWhileRunning(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "stable text"))

	emb := &gateEmbedder{MockEmbedder: embedding.NewMockEmbedder("model-a", 8)}
	p, _ := newTestPile(t, root, dataDir, emb)
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := emb.hold()
	if _, err := p.StartRegeneration(); err != nil {
		t.Fatal(err)
	}
	if err := p.RegenerateEmbeddings(context.Background()); !errors.Is(err, ErrRegenerationRunning) {
		t.Errorf("got %v, want ErrRegenerationRunning", err)
	}
	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for p.RegenJob() != "" {
		if time.Now().After(deadline) {
			t.Fatal("regeneration did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// zeroDimEmbedder simulates a misconfigured backend reporting no
// dimensionality.
type zeroDimEmbedder struct {
	*embedding.MockEmbedder
}

func (zeroDimEmbedder) Dimensions() int { return 0 }

func TestPile_LoadRejectsZeroDimensionEmbedder(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "some text"))

	emb := zeroDimEmbedder{embedding.NewMockEmbedder("model-a", 8)}
	p, _ := newTestPile(t, root, dataDir, emb)
	if _, err := p.Load(context.Background()); err == nil {
		t.Fatal("expected an error for a zero-dimension embedder")
	}
}

func TestPile_LoadCorruptSnapshotStartsEmpty(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "some text"))
	if err := os.WriteFile(filepath.Join(dataDir, "embeddings.bin"), []byte("not a snapshot"), 0644); err != nil {
		t.Fatal(err)
	}

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	report, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.StaleModel != nil {
		t.Errorf("corrupt snapshot is not a model mismatch: %v", report.StaleModel)
	}
	status := p.Status()
	if !status.VectorReady || status.Vectors != 1 {
		t.Errorf("vectors should rebuild from entries: %+v", status)
	}
}

func TestPile_VectorSearchDegradesOnEmbedFailure(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "some text"))

	mock := embedding.NewMockEmbedder("model-a", 8)
	p, _ := newTestPile(t, root, dataDir, mock)
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	mock.Fail = errors.New("backend down")
	hits, err := p.VectorSearch(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("embed failure must degrade, not error: %v", err)
	}
	if hits != nil {
		t.Errorf("expected empty hits, got %v", hits)
	}
}

func TestPile_ReplyUpdateReembedsParent(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "root.md", entryContent("Thread", "2024-01-01T10:00:00Z", false, []string{"r1.md"}, "thread start"))
	writeEntry(t, root, "r1.md", entryContent("", "2024-01-01T11:00:00Z", true, nil, "a reply"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeEntry(t, root, "r1.md", entryContent("", "2024-01-01T11:00:00Z", true, nil, "an edited reply"))
	if err := p.Update(context.Background(), "r1.md"); err != nil {
		t.Fatal(err)
	}

	status := p.Status()
	if status.Vectors != 1 {
		t.Errorf("reply must not get its own vector: %+v", status)
	}
}

func TestPile_ThreadsAsText(t *testing.T) {
	root, dataDir := t.TempDir(), t.TempDir()
	writeEntry(t, root, "a.md", entryContent("T", "2024-01-01T10:00:00Z", false, nil, "thread a"))
	writeEntry(t, root, "b.md", entryContent("T", "2024-01-02T10:00:00Z", false, nil, "thread b"))

	p, _ := newTestPile(t, root, dataDir, embedding.NewMockEmbedder("model-a", 8))
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	texts := p.GetThreadsAsText([]string{"a.md", "gone.md", "b.md"})
	if len(texts) != 3 {
		t.Fatalf("positions must be preserved, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "thread a") || texts[1] != "" || !strings.Contains(texts[2], "thread b") {
		t.Errorf("texts: %q", texts)
	}

	latest := p.LatestThreads(1)
	if len(latest) != 1 || !strings.Contains(latest[0], "thread b") {
		t.Errorf("latest should be the newest thread: %q", latest)
	}
}
