package timeparse

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/ainews/internal/dom"
)

// metaSelectors are checked in order; the first parseable content wins.
var metaSelectors = []string{
	"meta[property='article:published_time']",
	"meta[property='article:modified_time']",
	"meta[name='pubdate']",
	"meta[name='publishdate']",
	"meta[name='publish-date']",
	"meta[name='date']",
	"meta[itemprop='datePublished']",
	"meta[itemprop='dateCreated']",
	"meta[itemprop='dateModified']",
}

var bodyMarkers = []string{
	"发布时间", "发布于", "发表于", "更新于", "日期",
	"Published on", "Published at", "Updated on", "Updated at", "Posted on",
}

const (
	bodyScanLen   = 4000
	markerSnippet = 120
)

// FromDocument extracts the publish time of an article page: meta tags, then
// <time> elements, then JSON-LD blocks, then body-text markers. Body text is
// read with relative parsing disabled.
func FromDocument(doc *goquery.Document, ref time.Time) (time.Time, bool) {
	for _, sel := range metaSelectors {
		if t, ok := firstParsed(doc.Find(sel), ref, func(s *goquery.Selection) string {
			v, _ := s.Attr("content")
			return v
		}); ok {
			return t, true
		}
	}

	if t, ok := firstParsed(doc.Find("time"), ref, func(s *goquery.Selection) string {
		if v, ok := s.Attr("datetime"); ok && strings.TrimSpace(v) != "" {
			return v
		}
		return dom.Text(s)
	}); ok {
		return t, true
	}

	var found time.Time
	var ok bool
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		node, err := parseJSONNode(s.Text())
		if err != nil {
			return true
		}
		found, ok = node.findDate(ref)
		return !ok
	})
	if ok {
		return found, true
	}

	body := dom.Truncate(dom.Text(doc.Find("body")), bodyScanLen)
	noRel := Options{NoRelative: true}
	for _, marker := range bodyMarkers {
		idx := strings.Index(body, marker)
		if idx < 0 {
			continue
		}
		if t, ok := Parse(dom.Truncate(body[idx:], markerSnippet), ref, noRel); ok {
			return t, true
		}
	}
	return Parse(body, ref, noRel)
}

// FromHTML parses body and runs FromDocument.
func FromHTML(body string, ref time.Time) (time.Time, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return time.Time{}, false
	}
	return FromDocument(doc, ref)
}

func firstParsed(sel *goquery.Selection, ref time.Time, value func(*goquery.Selection) string) (time.Time, bool) {
	var found time.Time
	var ok bool
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v := strings.TrimSpace(value(s))
		if v == "" {
			return true
		}
		found, ok = Parse(v, ref, Options{})
		return !ok
	})
	return found, ok
}
