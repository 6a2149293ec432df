package tender

import (
	"reflect"
	"testing"
)

func TestJoinSplitRoundTrip(t *testing.T) {
	pages := []string{"A", "B"}
	body := JoinPages(pages)
	if body != "A\n\n---END OF PAGE---\n\nB" {
		t.Fatalf("body = %q", body)
	}
	if got := SplitPages(body); !reflect.DeepEqual(got, pages) {
		t.Fatalf("SplitPages = %q", got)
	}
}

func TestSplitPagesEmpty(t *testing.T) {
	if got := SplitPages(""); got != nil {
		t.Fatalf("SplitPages(\"\") = %q", got)
	}
	if got := SplitPages("only"); !reflect.DeepEqual(got, []string{"only"}) {
		t.Fatalf("SplitPages single = %q", got)
	}
}
