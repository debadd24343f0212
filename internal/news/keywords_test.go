package news

import "testing"

func TestCountSubstrings(t *testing.T) {
	got := CountSubstrings("公司发布并开源新模型 Launch", []string{"发布", "开源", "融资", "launch"})
	if got != 3 {
		t.Fatalf("CountSubstrings = %d, want 3", got)
	}
	if got := CountSubstrings("ChatGPT 与 LLMs", AIKeywords); got != 2 {
		t.Fatalf("CountSubstrings(AIKeywords) = %d, want 2", got)
	}
}

func TestMatchesRequired(t *testing.T) {
	if !MatchesRequired(nil, "anything") {
		t.Fatal("empty allow-list must pass")
	}
	if !MatchesRequired([]string{"Agent"}, "New agent framework", "") {
		t.Fatal("expected case-insensitive match")
	}
	if MatchesRequired([]string{"agent"}, "weather", "sports") {
		t.Fatal("unexpected match")
	}
}

func TestParsePerspective(t *testing.T) {
	p, ok := ParsePerspective(" Technology\n")
	if !ok || p != PerspectiveTechnology {
		t.Fatalf("got %q %v", p, ok)
	}
	if _, ok := ParsePerspective("unsure"); ok {
		t.Fatal("expected no perspective")
	}
}
