package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/news"
)

func profilePayload(t *testing.T, ret int, asString bool) []byte {
	t.Helper()
	list := map[string]any{
		"list": []any{
			map[string]any{
				"comm_msg_info": map[string]any{"datetime": 1771920000},
				"app_msg_ext_info": map[string]any{
					"title":       "大模型周报",
					"content_url": "/s?__biz=X&mid=1",
					"digest":      "本周AI要闻",
					"multi_app_msg_item_list": []any{
						map[string]any{"title": "重复链接", "content_url": "/s?__biz=X&mid=1"},
						map[string]any{"title": "智能体实践", "content_url": "https://mp.weixin.qq.com/s?__biz=X&mid=2", "digest": "agent"},
						"not an object",
					},
				},
			},
			map[string]any{
				"comm_msg_info":    map[string]any{"datetime": "bad"},
				"app_msg_ext_info": map[string]any{"title": "坏时间戳", "content_url": "/s/3"},
			},
			map[string]any{"comm_msg_info": map[string]any{"datetime": 1771920000}},
		},
	}
	var general any = list
	if asString {
		b, _ := json.Marshal(list)
		general = string(b)
	}
	out, err := json.Marshal(map[string]any{"ret": ret, "general_msg_list": general})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func profileServer(t *testing.T, body []byte, gotBiz *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			t.Errorf("cookie = %q", r.Header.Get("Cookie"))
		}
		if r.URL.Query().Get("action") != "getmsg" || r.URL.Query().Get("f") != "json" {
			t.Errorf("query = %v", r.URL.Query())
		}
		if gotBiz != nil {
			*gotBiz = r.URL.Query().Get("__biz")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
}

func TestCollectPlatformProfile(t *testing.T) {
	for _, asString := range []bool{true, false} {
		var biz string
		srv := profileServer(t, profilePayload(t, 0, asString), &biz)

		a := newTestAdapter(srv, Options{PlatformCookie: "session=abc", PlatformEndpoint: srv.URL})
		items, err := a.Collect(context.Background(), news.SourceConfig{
			Name: "profile",
			Kind: news.KindPlatformProfile,
			URL:  "https://mp.weixin.qq.com/mp/profile_ext?action=home&__biz=MzA3MzI4MjgzMw==",
		})
		srv.Close()
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if biz != "MzA3MzI4MjgzMw==" {
			t.Errorf("profile id from url = %q", biz)
		}
		if len(items) != 2 {
			t.Fatalf("asString=%v: got %d items: %+v", asString, len(items), items)
		}
		if items[0].URL != "https://mp.weixin.qq.com/s?__biz=X&mid=1" || items[0].Content != "本周AI要闻" {
			t.Errorf("first item %+v", items[0])
		}
		if items[1].Title != "智能体实践" {
			t.Errorf("second item %+v", items[1])
		}
		if !items[0].PublishedAt.Equal(time.Unix(1771920000, 0)) {
			t.Errorf("published %v", items[0].PublishedAt)
		}
	}
}

func TestCollectPlatformProfileSoftSkips(t *testing.T) {
	srv := profileServer(t, profilePayload(t, -3, false), nil)
	defer srv.Close()
	src := news.SourceConfig{Name: "profile", Kind: news.KindPlatformProfile, PlatformID: "X=="}

	noCookie := newTestAdapter(srv, Options{PlatformEndpoint: srv.URL})
	items, err := noCookie.Collect(context.Background(), src)
	if err != nil || len(items) != 0 {
		t.Fatalf("missing credential: items=%v err=%v", items, err)
	}

	rejected := newTestAdapter(srv, Options{PlatformCookie: "session=abc", PlatformEndpoint: srv.URL})
	items, err = rejected.Collect(context.Background(), src)
	if err != nil || len(items) != 0 {
		t.Fatalf("non-zero ret: items=%v err=%v", items, err)
	}
}

func TestCollectPlatformProfileKeywordFilter(t *testing.T) {
	srv := profileServer(t, profilePayload(t, 0, true), nil)
	defer srv.Close()

	a := newTestAdapter(srv, Options{PlatformCookie: "session=abc", PlatformEndpoint: srv.URL})
	items, err := a.Collect(context.Background(), news.SourceConfig{
		Name:                "profile",
		Kind:                news.KindPlatformProfile,
		PlatformID:          "X==",
		RequiredKeywordsAny: []string{"agent"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "智能体实践" {
		t.Fatalf("got %+v", items)
	}
}

func TestCollectErrors(t *testing.T) {
	a := New(nil, nil, Options{}, nil)

	_, err := a.Collect(context.Background(), news.SourceConfig{Name: "p", Kind: news.KindPlatformProfile, URL: "https://example.com"})
	if !errors.Is(err, ErrMissingProfileID) {
		t.Fatalf("err = %v, want ErrMissingProfileID", err)
	}

	_, err = a.Collect(context.Background(), news.SourceConfig{Name: "x", Kind: "telegram"})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("err = %v, want ErrUnsupportedKind", err)
	}
}
