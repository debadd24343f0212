package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/deusflow/ainews/internal/scraper"
)

const (
	redirectorMarker = "weixin.sogou.com/link?"
	articleMarker    = "mp.weixin.qq.com/s?"
)

var (
	redirectChunkRe = regexp.MustCompile(`url \+= '([^']+)';`)

	articleVarPatterns = []struct {
		key string
		re  *regexp.Regexp
	}{
		{"biz", regexp.MustCompile(`var\s+biz\s*=\s*"([A-Za-z0-9_=]+)"`)},
		{"mid", regexp.MustCompile(`var\s+mid\s*=\s*"([0-9]+)"`)},
		{"idx", regexp.MustCompile(`var\s+idx\s*=\s*"([0-9]+)"`)},
		{"sn", regexp.MustCompile(`var\s+sn\s*=\s*"([A-Za-z0-9]+)"`)},
	}
)

// desktopHeaders is the browser identity the redirector expects.
func desktopHeaders() http.Header {
	return http.Header{
		"User-Agent":      {"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"},
		"Accept-Language": {"zh-CN,zh;q=0.9"},
		"Referer":         {"https://weixin.sogou.com/"},
	}
}

// mobileHeaders is the client identity the publishing platform serves
// article pages and the profile API to.
func mobileHeaders() http.Header {
	return http.Header{
		"User-Agent":      {"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"},
		"Accept-Language": {"zh-CN,zh;q=0.9"},
		"Referer":         {"https://mp.weixin.qq.com/"},
	}
}

// resolveRedirect turns a redirector link into the stable article URL.
// Any failure keeps the best URL found so far.
func (a *Adapter) resolveRedirect(ctx context.Context, rawURL string) string {
	if !strings.Contains(rawURL, redirectorMarker) {
		return rawURL
	}
	body, err := scraper.Get(ctx, a.client, rawURL, desktopHeaders())
	if err != nil {
		a.logger.Debug("redirect fetch failed", "url", rawURL, "error", err)
		return rawURL
	}
	target := extractRedirectURL(body)
	if target == "" {
		return rawURL
	}
	return a.canonicalArticleURL(ctx, target)
}

// extractRedirectURL reassembles the destination the redirector builds in
// inline script ("url += '...';" chunks).
func extractRedirectURL(body string) string {
	matches := redirectChunkRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m[1])
	}
	target := strings.NewReplacer("\n", "", " ", "", "@", "").Replace(b.String())
	if !strings.HasPrefix(target, "http") {
		return ""
	}
	return target
}

// canonicalArticleURL rewrites a temporary article link into its permanent
// form built from the page's biz/mid/idx/sn values.
func (a *Adapter) canonicalArticleURL(ctx context.Context, rawURL string) string {
	if !strings.Contains(rawURL, articleMarker) {
		return rawURL
	}
	body, finalURL, err := scraper.GetFinal(ctx, a.client, rawURL, mobileHeaders())
	if err != nil {
		return rawURL
	}
	if canonical, ok := canonicalFromArticle(body); ok {
		return canonical
	}
	return finalURL
}

func canonicalFromArticle(body string) (string, bool) {
	values := make(map[string]string, len(articleVarPatterns))
	for _, p := range articleVarPatterns {
		m := p.re.FindStringSubmatch(body)
		if m == nil {
			return "", false
		}
		values[p.key] = m[1]
	}
	return fmt.Sprintf("https://mp.weixin.qq.com/s?__biz=%s&mid=%s&idx=%s&sn=%s#rd",
		values["biz"], values["mid"], values["idx"], values["sn"]), true
}
