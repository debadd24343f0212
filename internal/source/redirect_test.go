package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractRedirectURL(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "chunks joined and scrubbed",
			body: "<script>var url = '';\nurl += 'https://mp.weixin.qq.com/s?src=11';\nurl += '&timestamp=17@71';\nurl += '&ver=1 2';\n</script>",
			want: "https://mp.weixin.qq.com/s?src=11&timestamp=1771&ver=12",
		},
		{name: "no chunks", body: "<html></html>", want: ""},
		{name: "not a url", body: "url += 'javascript:alert(1)';", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRedirectURL(tt.body); got != tt.want {
				t.Errorf("extractRedirectURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalFromArticle(t *testing.T) {
	body := `var biz = "MzA3MzI4MjgzMw==";
var sn = "abcdef0123";
var mid = "2650";
var idx = "1";`
	got, ok := canonicalFromArticle(body)
	if !ok {
		t.Fatal("expected canonical url")
	}
	want := "https://mp.weixin.qq.com/s?__biz=MzA3MzI4MjgzMw==&mid=2650&idx=1&sn=abcdef0123#rd"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, ok := canonicalFromArticle(`var biz = "X"; var mid = "1";`); ok {
		t.Error("partial variables must not produce a url")
	}
}

func TestResolveRedirect(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/weixin.sogou.com/link", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "Macintosh") {
			t.Errorf("redirector called with UA %q", r.Header.Get("User-Agent"))
		}
		target := srv.URL + "/mp.weixin.qq.com/s?src=3"
		half := len(target) / 2
		w.Write([]byte("<script>url += '" + target[:half] + "';\nurl += '" + target[half:] + "';</script>"))
	})
	mux.HandleFunc("/mp.weixin.qq.com/s", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("to") == "final" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "iPhone") {
			t.Errorf("article called with UA %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`<script>var biz = "B==";var mid = "7";var idx = "2";var sn = "s1";</script>`))
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no vars"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	a := New(srv.Client(), nil, Options{Now: func() time.Time { return runTime }}, nil)
	ctx := context.Background()

	got := a.resolveRedirect(ctx, srv.URL+"/weixin.sogou.com/link?url=abc")
	if want := "https://mp.weixin.qq.com/s?__biz=B==&mid=7&idx=2&sn=s1#rd"; got != want {
		t.Errorf("resolveRedirect = %q, want %q", got, want)
	}

	plain := srv.URL + "/news/1"
	if got := a.resolveRedirect(ctx, plain); got != plain {
		t.Errorf("non-redirector url changed to %q", got)
	}

	// no article variables: keep the final URL after redirects
	if got := a.canonicalArticleURL(ctx, srv.URL+"/mp.weixin.qq.com/s?to=final"); got != srv.URL+"/final" {
		t.Errorf("canonicalArticleURL = %q, want final url", got)
	}
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(5*time.Second, "http://127.0.0.1:3128")
	if err != nil {
		t.Fatal(err)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
	tr := c.Transport.(*http.Transport)
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	u, err := tr.Proxy(req)
	if err != nil || u == nil || u.Host != "127.0.0.1:3128" {
		t.Errorf("proxy = %v, %v", u, err)
	}

	if _, err := NewHTTPClient(time.Second, "://bad"); err == nil {
		t.Error("expected proxy parse error")
	}
}
