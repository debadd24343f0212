package rank

import (
	"sort"

	"github.com/deusflow/ainews/internal/news"
)

// Quota bounds a selection.
type Quota struct {
	Min        int
	Max        int
	MixMinEach int
	// MaxPerSource caps items from one source; <= 0 disables the cap.
	MaxPerSource int
}

type selection struct {
	q        Quota
	items    []news.RankedItem
	ids      map[string]bool
	bySource map[string]int
}

func (s *selection) canAdd(it news.RankedItem, capped bool) bool {
	if s.ids[it.ItemID] {
		return false
	}
	if !capped || s.q.MaxPerSource <= 0 {
		return true
	}
	return s.bySource[it.SourceName] < s.q.MaxPerSource
}

func (s *selection) add(it news.RankedItem) {
	s.items = append(s.items, it)
	s.ids[it.ItemID] = true
	s.bySource[it.SourceName]++
}

// Select fills a selection from ranked (highest score first) in three
// passes: MixMinEach per perspective under the source cap, then up to Max
// under the cap, then up to Min with the cap lifted. The result is sorted
// by score and holds at most Max items.
func Select(ranked []news.RankedItem, q Quota) []news.RankedItem {
	if q.Max < q.Min {
		q.Max = q.Min
	}
	s := &selection{
		q:        q,
		ids:      make(map[string]bool, len(ranked)),
		bySource: make(map[string]int),
	}

	for _, p := range news.Perspectives {
		taken := 0
		for _, it := range ranked {
			if taken >= q.MixMinEach {
				break
			}
			if it.Perspective != p || !s.canAdd(it, true) {
				continue
			}
			s.add(it)
			taken++
		}
	}

	for _, it := range ranked {
		if len(s.items) >= q.Max {
			break
		}
		if s.canAdd(it, true) {
			s.add(it)
		}
	}

	for _, it := range ranked {
		if len(s.items) >= q.Min {
			break
		}
		if s.canAdd(it, false) {
			s.add(it)
		}
	}

	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].Score > s.items[j].Score
	})
	if len(s.items) > q.Max {
		s.items = s.items[:q.Max]
	}
	return s.items
}
