package chunker

import (
	"strings"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 4, 1, false},
		{"zero overlap", 4, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 4, -1, true},
		{"overlap equals size", 4, 4, true},
		{"overlap exceeds size", 4, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestChunk_Empty(t *testing.T) {
	c, _ := New(4, 1)
	if got := c.Chunk(""); got != nil {
		t.Errorf("Chunk(\"\") = %v, want nil", got)
	}
	if got := c.Chunk("   \n\t "); got != nil {
		t.Errorf("Chunk(whitespace) = %v, want nil", got)
	}
}

func TestChunk_Windows(t *testing.T) {
	c, _ := New(4, 1)
	got := c.Chunk("a b c d e f g h")
	want := []string{"a b c d", "d e f g", "g h"}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// A window ending exactly on the last token ends the sequence; no extra
// window containing only the previous window's overlap tail is emitted.
func TestChunk_NoTrailingOverlapOnlyWindow(t *testing.T) {
	c, _ := New(4, 1)
	got := c.Chunk("a b c d e f g")
	want := []string{"a b c d", "d e f g"}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChunk_ShortInput(t *testing.T) {
	c, _ := New(10, 2)
	got := c.Chunk("only three words")
	if len(got) != 1 || got[0] != "only three words" {
		t.Errorf("Chunk(short) = %v", got)
	}
}

// De-overlapping the windows must reconstruct the original token sequence.
func TestChunk_Reconstruction(t *testing.T) {
	tests := []struct {
		size    int
		overlap int
		text    string
	}{
		{4, 1, "the quick brown fox jumps over the lazy dog again and again"},
		{3, 0, "one two three four five six seven"},
		{5, 4, "a b c d e f g h i j"},
	}
	for _, tt := range tests {
		c, err := New(tt.size, tt.overlap)
		if err != nil {
			t.Fatal(err)
		}
		chunks := c.Chunk(tt.text)
		var rebuilt []string
		for i, ch := range chunks {
			words := strings.Fields(ch)
			if i > 0 {
				// Later windows repeat the previous window's tail unless the
				// previous window was truncated at the end of the input.
				if tt.overlap < len(words) {
					words = words[tt.overlap:]
				}
			}
			rebuilt = append(rebuilt, words...)
		}
		want := strings.Fields(tt.text)
		if strings.Join(rebuilt, " ") != strings.Join(want, " ") {
			t.Errorf("size=%d overlap=%d: rebuilt %v, want %v", tt.size, tt.overlap, rebuilt, want)
		}
	}
}
