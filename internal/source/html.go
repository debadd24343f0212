package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/deusflow/ainews/internal/dom"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/scraper"
	"github.com/deusflow/ainews/internal/timeparse"
)

const (
	defaultArticleSelector = "article a, h2 a, h3 a, li a"
	minAnchorRunes         = 8
)

// noiseWords mark navigation and UI anchors rather than articles.
var noiseWords = []string{
	"登录", "注册", "关于", "联系我们", "订阅", "隐私", "条款", "下载", "交流群", "公众号",
	" app", "app ", "learn more", "more",
}

var skipHrefPrefixes = []string{"#", "javascript:", "mailto:"}

type link struct {
	title     string
	url       string
	published *time.Time
	context   string
	author    string
}

// listing extracts article links from one HTML listing page.
type listing struct {
	src      news.SourceConfig
	selector string
	linkRe   *regexp.Regexp
	dateRe   *regexp.Regexp
	ref      time.Time
	opts     Options
}

func newListing(src news.SourceConfig, ref time.Time, opts Options) (*listing, error) {
	l := &listing{src: src, selector: src.ArticleSelector, ref: ref, opts: opts}
	if strings.TrimSpace(l.selector) == "" {
		l.selector = defaultArticleSelector
	}
	var err error
	if src.LinkPattern != "" {
		if l.linkRe, err = regexp.Compile(src.LinkPattern); err != nil {
			return nil, fmt.Errorf("compile link pattern: %w", err)
		}
	}
	if src.DateRegex != "" {
		if l.dateRe, err = regexp.Compile(src.DateRegex); err != nil {
			return nil, fmt.Errorf("compile date regex: %w", err)
		}
	}
	return l, nil
}

func (l *listing) links(doc *goquery.Document) []link {
	var out []link

	switch {
	case l.src.ItemContainerSelector != "" && l.src.DateSelector != "":
		// One article per declared item container.
		doc.Find(l.src.ItemContainerSelector).Each(func(_ int, container *goquery.Selection) {
			container.Find(l.selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
				if lk, ok := l.check(a, container); ok {
					out = append(out, lk)
					return false
				}
				return true
			})
		})
	case l.src.DateSelector != "":
		doc.Find(l.selector).Each(func(_ int, a *goquery.Selection) {
			if lk, ok := l.check(a, l.dateContainer(a)); ok {
				out = append(out, lk)
			}
		})
	default:
		doc.Find(l.selector).Each(func(_ int, a *goquery.Selection) {
			if lk, ok := l.check(a, nil); ok {
				out = append(out, lk)
			}
		})
	}
	return out
}

// dateContainer walks up from the anchor until an ancestor holds a date
// element, stopping at body/html or the depth limit.
func (l *listing) dateContainer(a *goquery.Selection) *goquery.Selection {
	container := a.Parent()
	for depth := 0; container.Length() > 0 && depth < l.opts.ContainerSearchDepth; depth++ {
		if tag := dom.Tag(container); tag == "body" || tag == "html" {
			break
		}
		if container.Find(l.src.DateSelector).Length() > 0 {
			break
		}
		container = container.Parent()
	}
	if container.Length() == 0 {
		return nil
	}
	return container
}

func (l *listing) check(a, container *goquery.Selection) (link, bool) {
	href, _ := a.Attr("href")
	text := dom.Text(a)
	if href == "" || text == "" {
		return link{}, false
	}

	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)
	if utf8.RuneCountInString(trimmed) < minAnchorRunes {
		return link{}, false
	}
	for _, noise := range noiseWords {
		if strings.Contains(lowered, noise) {
			return link{}, false
		}
	}
	if strings.HasSuffix(lowered, "app") {
		return link{}, false
	}
	for _, prefix := range skipHrefPrefixes {
		if strings.HasPrefix(href, prefix) {
			return link{}, false
		}
	}

	target := resolveURL(l.src.URL, href)
	if !strings.HasPrefix(target, "http") {
		return link{}, false
	}
	if l.linkRe != nil && !l.linkRe.MatchString(target) {
		return link{}, false
	}

	lk := link{title: text, url: target, context: text}
	if container != nil {
		lk.context = dom.Text(container)
		if l.src.AuthorSelector != "" {
			if el := container.Find(l.src.AuthorSelector).First(); el.Length() > 0 {
				lk.author = dom.Text(el)
			}
		}
		if l.src.DateSelector != "" {
			if el := l.nearestDate(container, a); el != nil {
				if t, ok := l.dateFromElement(el); ok {
					lk.published = &t
				}
			}
		}
	}
	if lk.published == nil {
		if t, ok := l.nearbyDate(a); ok {
			lk.published = &t
		}
	}
	return lk, true
}

// nearestDate picks the date element closest to the anchor in document
// order. Ties go to the element after the anchor.
func (l *listing) nearestDate(container, a *goquery.Selection) *goquery.Selection {
	candidates := container.Find(l.src.DateSelector)
	switch candidates.Length() {
	case 0:
		return nil
	case 1:
		return candidates
	}

	index := make(map[*html.Node]int)
	container.Find("*").Each(func(i int, s *goquery.Selection) {
		index[s.Nodes[0]] = i
	})
	anchorIdx, ok := index[a.Nodes[0]]
	if !ok {
		return candidates.First()
	}

	best, bestDist, bestBefore := 0, -1, 0
	candidates.Each(func(i int, s *goquery.Selection) {
		idx, ok := index[s.Nodes[0]]
		if !ok {
			idx = anchorIdx
		}
		delta := idx - anchorIdx
		dist, before := delta, 0
		if delta < 0 {
			dist, before = -delta, 1
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && before < bestBefore) {
			best, bestDist, bestBefore = i, dist, before
		}
	})
	return candidates.Eq(best)
}

func (l *listing) dateFromElement(el *goquery.Selection) (time.Time, bool) {
	if l.src.DateAttr != "" {
		if v, ok := el.Attr(l.src.DateAttr); ok && strings.TrimSpace(v) != "" {
			return timeparse.Parse(v, l.ref, timeparse.Options{})
		}
	}
	return timeparse.Parse(dom.Text(el), l.ref, timeparse.Options{Pattern: l.dateRe})
}

// nearbyDate scans ancestor text with relative parsing off: listing rows
// often carry titles like "刚刚，..." that are not timestamps.
func (l *listing) nearbyDate(a *goquery.Selection) (time.Time, bool) {
	node := a
	for i := 0; i < l.opts.NearbyDateDepth; i++ {
		node = node.Parent()
		if node.Length() == 0 {
			break
		}
		if t, ok := timeparse.Parse(dom.Text(node), l.ref, timeparse.Options{NoRelative: true}); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (a *Adapter) collectHTML(ctx context.Context, src news.SourceConfig) ([]news.RawItem, error) {
	body, err := a.get(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", src.URL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", src.URL, err)
	}

	now := a.now()
	l, err := newListing(src, now, a.opts)
	if err != nil {
		return nil, err
	}

	var items []news.RawItem
	seen := make(map[string]bool)
	for _, lk := range l.links(doc) {
		if !news.MatchesRequired(src.RequiredKeywordsAny, lk.title, lk.context, lk.author, lk.url) {
			a.dropped(src, "keywords", lk.title)
			continue
		}
		if !news.MatchesRequired(src.RequiredAuthorKeywordsAny, lk.author) {
			a.dropped(src, "author_keywords", lk.title, "author", lk.author)
			continue
		}

		finalURL := lk.url
		if src.ResolveRedirect {
			finalURL = a.resolveRedirect(ctx, lk.url)
		}
		if seen[finalURL] {
			continue
		}
		seen[finalURL] = true

		published := lk.published
		if published == nil {
			if t, ok := a.pages.PublishedAt(ctx, finalURL, now); ok {
				published = &t
			}
		}
		if published == nil {
			a.dropped(src, "no_publish_time", lk.title, "url", finalURL)
			continue
		}

		name := src.Name
		if src.SplitByPublisher {
			publisher := scraper.ExtractPublisher(lk.title + " " + lk.context)
			if publisher == "" {
				publisher = a.pages.Publisher(ctx, finalURL)
			}
			if publisher != "" {
				name = src.Name + "/" + publisher
			}
		}

		items = append(items, news.RawItem{
			SourceName:   name,
			SourceWeight: src.Weight,
			URL:          finalURL,
			Title:        lk.title,
			Content:      lk.context,
			PublishedAt:  published,
			DiscoveredAt: now,
			Tags:         src.Tags,
		})
		if len(items) >= MaxItemsPerCall {
			break
		}
	}
	return items, nil
}
