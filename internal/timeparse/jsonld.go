package timeparse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type nodeKind int

const (
	nodeOther nodeKind = iota
	nodeString
	nodeArray
	nodeObject
)

type member struct {
	key   string
	value jsonNode
}

// jsonNode is a parsed JSON-LD value. Object members keep document order so
// the first date key found is the one the author wrote first.
type jsonNode struct {
	kind    nodeKind
	str     string
	items   []jsonNode
	members []member
}

var jsonLDDateKeys = map[string]bool{
	"datepublished": true,
	"datecreated":   true,
	"datemodified":  true,
	"uploaddate":    true,
}

func parseJSONNode(raw string) (jsonNode, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.UseNumber()
	return decodeNode(dec)
}

func decodeNode(dec *json.Decoder) (jsonNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return jsonNode{}, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := jsonNode{kind: nodeObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return jsonNode{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return jsonNode{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				child, err := decodeNode(dec)
				if err != nil {
					return jsonNode{}, err
				}
				n.members = append(n.members, member{key: key, value: child})
			}
			_, err := dec.Token() // '}'
			return n, err
		case '[':
			n := jsonNode{kind: nodeArray}
			for dec.More() {
				child, err := decodeNode(dec)
				if err != nil {
					return jsonNode{}, err
				}
				n.items = append(n.items, child)
			}
			_, err := dec.Token() // ']'
			return n, err
		}
		return jsonNode{}, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return jsonNode{kind: nodeString, str: v}, nil
	default:
		return jsonNode{kind: nodeOther}, nil
	}
}

// findDate walks the tree depth-first looking for a known date key whose
// string value parses.
func (n jsonNode) findDate(ref time.Time) (time.Time, bool) {
	switch n.kind {
	case nodeObject:
		for _, m := range n.members {
			if m.value.kind == nodeString && jsonLDDateKeys[strings.ToLower(m.key)] {
				if t, ok := Parse(m.value.str, ref, Options{}); ok {
					return t, true
				}
			}
			if t, ok := m.value.findDate(ref); ok {
				return t, true
			}
		}
	case nodeArray:
		for _, item := range n.items {
			if t, ok := item.findDate(ref); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
