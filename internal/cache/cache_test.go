package cache

import (
	"strings"
	"testing"

	"github.com/newsdesk/tagsuggest/internal/suggest"
)

func TestKey_Deterministic(t *testing.T) {
	min := 0.2
	a := Key(3, "multilingual-e5-small", "adnoc ipo news", suggest.Options{K: 5, MinScore: &min})
	b := Key(3, "multilingual-e5-small", "adnoc ipo news", suggest.Options{K: 5, MinScore: &min})
	if a != b {
		t.Errorf("identical requests produced different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "tagsuggest:") {
		t.Errorf("key missing namespace prefix: %q", a)
	}
}

func TestKey_Sensitivity(t *testing.T) {
	min := 0.2
	otherMin := 0.5
	base := Key(3, "model-a", "adnoc ipo news", suggest.Options{K: 5, MinScore: &min})

	variants := map[string]string{
		"generation": Key(4, "model-a", "adnoc ipo news", suggest.Options{K: 5, MinScore: &min}),
		"model":      Key(3, "model-b", "adnoc ipo news", suggest.Options{K: 5, MinScore: &min}),
		"text":       Key(3, "model-a", "different text", suggest.Options{K: 5, MinScore: &min}),
		"k":          Key(3, "model-a", "adnoc ipo news", suggest.Options{K: 10, MinScore: &min}),
		"min_score":  Key(3, "model-a", "adnoc ipo news", suggest.Options{K: 5, MinScore: &otherMin}),
		"unset min":  Key(3, "model-a", "adnoc ipo news", suggest.Options{K: 5}),
		"reranker":   Key(3, "model-a", "adnoc ipo news", suggest.Options{K: 5, MinScore: &min, UseReranker: true}),
	}
	for name, key := range variants {
		if key == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}
