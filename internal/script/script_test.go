package script

import (
	"strings"
	"testing"
)

// TestRender tests that the allowlist and thresholds are baked into the script.
func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("embeds categories as a JS array", func(t *testing.T) {
		t.Parallel()

		out, err := Render(Params{Categories: []string{"/citizenship", "/ru"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		src := string(out)

		if !strings.Contains(src, `var CATEGORIES = ["/citizenship","/ru"];`) {
			t.Errorf("expected categories literal, got:\n%s", src)
		}
		if !strings.Contains(src, `var DELTA = 8;`) {
			t.Error("expected default scroll delta")
		}
		if !strings.Contains(src, `var SHOW_AT_TOP = 0;`) {
			t.Error("expected explicit zero show-at-top to be kept")
		}
		if !strings.Contains(src, `"header a"`) && !strings.Contains(src, `header a,`) {
			t.Error("expected nav selector in script")
		}
	})

	t.Run("nil categories render as empty array", func(t *testing.T) {
		t.Parallel()

		out, err := Render(Params{ScrollDelta: 12, ShowAtTop: 64})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		src := string(out)
		if !strings.Contains(src, `var CATEGORIES = [];`) {
			t.Errorf("expected empty categories, got:\n%s", src)
		}
		if !strings.Contains(src, `var DELTA = 12;`) || !strings.Contains(src, `var SHOW_AT_TOP = 64;`) {
			t.Errorf("expected custom thresholds, got:\n%s", src)
		}
	})

	t.Run("negative show-at-top falls back to default", func(t *testing.T) {
		t.Parallel()

		out, err := Render(Params{ShowAtTop: -1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(out), `var SHOW_AT_TOP = 40;`) {
			t.Error("expected default show-at-top")
		}
	})
}
