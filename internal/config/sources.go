package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/ainews/internal/news"
)

var envRef = regexp.MustCompile(`\$\{([A-Z0-9_]+)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references. An unset or
// empty variable falls back to the default, or to "".
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		sub := envRef.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}

type sourcesFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

// sourceEntry accepts both the current key names and the legacy ones.
type sourceEntry struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Kind    string   `yaml:"kind"`
	URL     string   `yaml:"url"`
	Weight  *float64 `yaml:"weight"`
	Enabled *bool    `yaml:"enabled"`
	Tags    []string `yaml:"tags"`

	ArticleSelector       string `yaml:"article_selector"`
	LinkPattern           string `yaml:"link_pattern"`
	DateSelector          string `yaml:"date_selector"`
	DateAttr              string `yaml:"date_attr"`
	DateRegex             string `yaml:"date_regex"`
	AuthorSelector        string `yaml:"author_selector"`
	ItemContainerSelector string `yaml:"item_container_selector"`

	RequiredKeywordsAny       []string `yaml:"required_keywords_any"`
	RequiredAuthorKeywordsAny []string `yaml:"required_author_keywords_any"`

	PlatformID       string `yaml:"platform_id"`
	WechatBiz        string `yaml:"wechat_biz"`
	ResolveRedirect  *bool  `yaml:"resolve_redirect"`
	ResolveSogou     *bool  `yaml:"resolve_sogou_redirect"`
	SplitByPublisher *bool  `yaml:"split_by_publisher"`
	SplitBySource    *bool  `yaml:"split_source_by_publisher"`
}

var kindAliases = map[string]news.SourceKind{
	"feed":             news.KindFeed,
	"rss":              news.KindFeed,
	"atom":             news.KindFeed,
	"html":             news.KindHTML,
	"platform_profile": news.KindPlatformProfile,
	"wechat_profile":   news.KindPlatformProfile,
}

// LoadSources reads the source list at path, expands environment
// references in every string value and drops disabled entries.
func LoadSources(path string) ([]news.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return ParseSources(data)
}

func ParseSources(data []byte) ([]news.SourceConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if root.Kind == 0 {
		return nil, nil
	}
	expandNode(&root)

	var file sourcesFile
	if err := root.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	var out []news.SourceConfig
	names := make(map[string]bool)
	for i, e := range file.Sources {
		if e.Enabled != nil && !*e.Enabled {
			continue
		}
		sc, err := e.toSource()
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if names[sc.Name] {
			return nil, fmt.Errorf("source %d: duplicate name %q", i, sc.Name)
		}
		names[sc.Name] = true
		out = append(out, sc)
	}
	return out, nil
}

// expandNode rewrites scalar values in place. Plain scalars lose their
// resolved tag so the decoder re-types the expanded text.
func expandNode(n *yaml.Node) {
	switch n.Kind {
	case yaml.ScalarNode:
		if !strings.Contains(n.Value, "${") {
			return
		}
		n.Value = ExpandEnv(n.Value)
		if n.Style&(yaml.TaggedStyle|yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
			n.Tag = ""
		}
	case yaml.DocumentNode, yaml.SequenceNode, yaml.MappingNode:
		for _, c := range n.Content {
			expandNode(c)
		}
	}
}

func (e sourceEntry) toSource() (news.SourceConfig, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return news.SourceConfig{}, errors.New("name is required")
	}
	rawKind := e.Type
	if rawKind == "" {
		rawKind = e.Kind
	}
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(rawKind))]
	if !ok {
		return news.SourceConfig{}, fmt.Errorf("%s: unknown type %q", name, rawKind)
	}
	if strings.TrimSpace(e.URL) == "" {
		return news.SourceConfig{}, fmt.Errorf("%s: url is required", name)
	}

	weight := 1.0
	if e.Weight != nil {
		weight = *e.Weight
	}
	if weight < 0 {
		return news.SourceConfig{}, fmt.Errorf("%s: weight must be >= 0", name)
	}

	platformID := e.PlatformID
	if platformID == "" {
		platformID = e.WechatBiz
	}

	return news.SourceConfig{
		Name:                      name,
		Kind:                      kind,
		URL:                       strings.TrimSpace(e.URL),
		Weight:                    weight,
		Tags:                      e.Tags,
		ArticleSelector:           e.ArticleSelector,
		LinkPattern:               e.LinkPattern,
		DateSelector:              e.DateSelector,
		DateAttr:                  e.DateAttr,
		DateRegex:                 e.DateRegex,
		AuthorSelector:            e.AuthorSelector,
		ItemContainerSelector:     e.ItemContainerSelector,
		RequiredKeywordsAny:       e.RequiredKeywordsAny,
		RequiredAuthorKeywordsAny: e.RequiredAuthorKeywordsAny,
		PlatformID:                platformID,
		ResolveRedirect:           firstSet(e.ResolveRedirect, e.ResolveSogou),
		SplitByPublisher:          firstSet(e.SplitByPublisher, e.SplitBySource),
	}, nil
}

func firstSet(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}
