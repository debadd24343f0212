package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/scraper"
)

const platformBaseURL = "https://mp.weixin.qq.com"

var profileIDRe = regexp.MustCompile(`__biz=([A-Za-z0-9_=]+)`)

type profileResponse struct {
	Ret      *int `json:"ret"`
	BaseResp struct {
		Ret *int `json:"ret"`
	} `json:"base_resp"`
	// GeneralMsgList is either an object or a JSON string holding one.
	GeneralMsgList json.RawMessage `json:"general_msg_list"`
}

func (r profileResponse) ret() int {
	if r.Ret != nil {
		return *r.Ret
	}
	if r.BaseResp.Ret != nil {
		return *r.BaseResp.Ret
	}
	return -1
}

type profileMsgList struct {
	List []json.RawMessage `json:"list"`
}

type profileMsg struct {
	CommMsgInfo struct {
		Datetime *int64 `json:"datetime"`
	} `json:"comm_msg_info"`
	AppMsgExtInfo *struct {
		articleStub
		MultiAppMsgItemList []json.RawMessage `json:"multi_app_msg_item_list"`
	} `json:"app_msg_ext_info"`
}

type articleStub struct {
	Title      string `json:"title"`
	ContentURL string `json:"content_url"`
	Digest     string `json:"digest"`
}

func (a *Adapter) collectPlatformProfile(ctx context.Context, src news.SourceConfig) ([]news.RawItem, error) {
	id := strings.TrimSpace(src.PlatformID)
	if id == "" {
		if m := profileIDRe.FindStringSubmatch(src.URL); m != nil {
			id = m[1]
		}
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingProfileID, src.Name)
	}

	cookie := strings.TrimSpace(a.opts.PlatformCookie)
	if cookie == "" {
		a.logger.Warn("skip platform profile source without credential", "source", src.Name)
		return nil, nil
	}

	q := url.Values{
		"action": {"getmsg"},
		"__biz":  {id},
		"f":      {"json"},
		"offset": {"0"},
		"count":  {"10"},
		"is_ok":  {"1"},
		"scene":  {"124"},
		"x5":     {"0"},
	}
	header := mobileHeaders()
	header.Set("Cookie", cookie)

	body, err := scraper.Get(ctx, a.client, a.opts.PlatformEndpoint+"?"+q.Encode(), header)
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", src.Name, err)
	}

	var resp profileResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	if ret := resp.ret(); ret != 0 {
		a.logger.Warn("platform profile call rejected", "source", src.Name, "ret", ret)
		return nil, nil
	}

	msgs, ok := decodeMsgList(resp.GeneralMsgList)
	if !ok {
		a.logger.Warn("platform profile message list is not valid JSON", "source", src.Name)
		return nil, nil
	}

	now := a.now()
	seen := make(map[string]bool)
	var items []news.RawItem
	for _, raw := range msgs.List {
		var msg profileMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			a.logger.Debug("skip malformed profile entry", "source", src.Name, "error", err)
			continue
		}
		if msg.CommMsgInfo.Datetime == nil || msg.AppMsgExtInfo == nil {
			continue
		}
		published := time.Unix(*msg.CommMsgInfo.Datetime, 0).UTC()

		stubs := []articleStub{msg.AppMsgExtInfo.articleStub}
		for _, rawStub := range msg.AppMsgExtInfo.MultiAppMsgItemList {
			var stub articleStub
			if json.Unmarshal(rawStub, &stub) == nil {
				stubs = append(stubs, stub)
			}
		}

		for _, stub := range stubs {
			title := strings.TrimSpace(stub.Title)
			contentURL := strings.TrimSpace(stub.ContentURL)
			digest := strings.TrimSpace(stub.Digest)
			if title == "" || contentURL == "" {
				continue
			}
			if !news.MatchesRequired(src.RequiredKeywordsAny, title, digest) {
				a.dropped(src, "keywords", title)
				continue
			}
			target := resolveURL(platformBaseURL, contentURL)
			if seen[target] {
				continue
			}
			seen[target] = true

			p := published
			items = append(items, news.RawItem{
				SourceName:   src.Name,
				SourceWeight: src.Weight,
				URL:          target,
				Title:        title,
				Content:      digest,
				PublishedAt:  &p,
				DiscoveredAt: now,
				Tags:         src.Tags,
			})
			if len(items) >= MaxItemsPerCall {
				return items, nil
			}
		}
	}
	return items, nil
}

func decodeMsgList(raw json.RawMessage) (profileMsgList, bool) {
	var list profileMsgList
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return list, true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return list, false
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return list, false
	}
	return list, true
}
