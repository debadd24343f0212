package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/timeparse"
)

func (a *Adapter) collectFeed(ctx context.Context, src news.SourceConfig) ([]news.RawItem, error) {
	body, err := a.get(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.URL, err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.URL, err)
	}

	now := a.now()
	var items []news.RawItem
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		title := strings.TrimSpace(entry.Title)
		link := strings.TrimSpace(entry.Link)
		if title == "" || link == "" {
			continue
		}

		content := entry.Description
		if content == "" {
			content = entry.Content
		}
		author := feedAuthor(entry)

		if !news.MatchesRequired(src.RequiredKeywordsAny, title, content, author) {
			a.dropped(src, "keywords", title)
			continue
		}
		if !news.MatchesRequired(src.RequiredAuthorKeywordsAny, author) {
			a.dropped(src, "author_keywords", title, "author", author)
			continue
		}

		published, ok := a.feedPublishedAt(ctx, entry, content, now)
		if !ok {
			a.dropped(src, "no_publish_time", title, "url", link)
			continue
		}

		items = append(items, news.RawItem{
			SourceName:   src.Name,
			SourceWeight: src.Weight,
			URL:          link,
			Title:        title,
			Content:      content,
			PublishedAt:  &published,
			DiscoveredAt: now,
			Tags:         src.Tags,
		})
		if len(items) >= MaxItemsPerCall {
			break
		}
	}
	return items, nil
}

// feedPublishedAt tries raw date fields, then parsed structs, then entry
// text, and finally the linked article page.
func (a *Adapter) feedPublishedAt(ctx context.Context, entry *gofeed.Item, content string, ref time.Time) (time.Time, bool) {
	raw := []string{entry.Published, entry.Updated}
	if entry.DublinCoreExt != nil {
		raw = append(raw, entry.DublinCoreExt.Date...)
	}
	for _, v := range raw {
		if t, ok := timeparse.Parse(v, ref, timeparse.Options{}); ok {
			return t, true
		}
	}

	for _, p := range []*time.Time{entry.PublishedParsed, entry.UpdatedParsed} {
		if p != nil && !p.IsZero() {
			return p.UTC(), true
		}
	}

	for _, v := range []string{entry.Description, content, entry.Title} {
		if t, ok := timeparse.Parse(v, ref, timeparse.Options{}); ok {
			return t, true
		}
	}

	return a.pages.PublishedAt(ctx, strings.TrimSpace(entry.Link), ref)
}

func feedAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, p := range entry.Authors {
		if p != nil && p.Name != "" {
			return p.Name
		}
	}
	return ""
}
