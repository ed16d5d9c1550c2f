package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/p-n-ai/pai-academy/internal/ai"
)

// DefaultNewsURL is used for items with no grounding source.
const DefaultNewsURL = "https://news.google.com"

const newsPrompt = "Search for today's top 5 trending tech and AI news stories. Provide a JSON array of objects with 'title', 'summary' (max 2 sentences), 'category' (e.g., AI, Robotics, Software), and 'sourceName'."

var newsSchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "title": {"type": "string"},
      "summary": {"type": "string"},
      "category": {"type": "string"},
      "sourceName": {"type": "string"}
    },
    "required": ["title", "summary", "category", "sourceName"]
  }
}`)

// NewsItem is one story in the daily feed.
type NewsItem struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Category   string `json:"category"`
	SourceName string `json:"sourceName"`
	SourceURL  string `json:"sourceUrl"`
}

// NewsSnapshot is the feed as last applied.
type NewsSnapshot struct {
	Items     []NewsItem `json:"items"`
	FetchedAt time.Time  `json:"fetchedAt,omitzero"`
}

// Feed keeps the latest news. Refreshes may overlap; a response is applied
// only if no later-issued refresh has been applied before it.
type Feed struct {
	gen *ai.Generator
	now func() time.Time

	mu      sync.Mutex
	issued  uint64
	applied uint64
	current NewsSnapshot
}

// NewFeed creates an empty feed.
func NewFeed(gen *ai.Generator) *Feed {
	return &Feed{
		gen:     gen,
		now:     time.Now,
		current: NewsSnapshot{Items: []NewsItem{}},
	}
}

// Snapshot returns the currently applied news.
func (f *Feed) Snapshot() NewsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneSnapshot(f.current)
}

// Refresh fetches the news and returns the feed afterwards. The second
// result reports whether this refresh's response was applied.
func (f *Feed) Refresh(ctx context.Context) (NewsSnapshot, bool) {
	f.mu.Lock()
	f.issued++
	seq := f.issued
	f.mu.Unlock()

	items := f.fetch(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq <= f.applied {
		slog.Debug("discarding stale news response", "seq", seq, "applied", f.applied)
		return cloneSnapshot(f.current), false
	}
	f.applied = seq
	f.current = NewsSnapshot{Items: items, FetchedAt: f.now()}
	return cloneSnapshot(f.current), true
}

// Schedule refreshes the feed on the cron spec (e.g. "0 6 * * *") until
// the returned scheduler is stopped.
func (f *Feed) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		snap, _ := f.Refresh(ctx)
		slog.Info("news feed refreshed", "items", len(snap.Items))
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func (f *Feed) fetch(ctx context.Context) []NewsItem {
	out := f.gen.GenerateStructured(ctx, ai.TaskNews, newsPrompt, newsSchema, ai.Tools{Search: true})
	return mapNews(out)
}

// mapNews decodes items and attaches the grounding source at the same
// position, falling back to the first source and then DefaultNewsURL.
func mapNews(out ai.Structured) []NewsItem {
	items := make([]NewsItem, 0, len(out.Items))
	for i, raw := range out.Items {
		var item NewsItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		switch {
		case i < len(out.Sources) && out.Sources[i].URI != "":
			item.SourceURL = out.Sources[i].URI
		case len(out.Sources) > 0 && out.Sources[0].URI != "":
			item.SourceURL = out.Sources[0].URI
		default:
			item.SourceURL = DefaultNewsURL
		}
		items = append(items, item)
	}
	return items
}

func cloneSnapshot(s NewsSnapshot) NewsSnapshot {
	s.Items = append([]NewsItem{}, s.Items...)
	return s
}
