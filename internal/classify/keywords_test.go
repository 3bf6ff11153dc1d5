package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasDevtoolsKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tool string
		text string
		want bool
	}{
		{name: "cli tool", tool: "Tool", text: "Great CLI for developers", want: true},
		{name: "plural keyword", tool: "DevCLI", text: "A command line tool for developers", want: true},
		{name: "gardening app", tool: "Gardenify", text: "A gardening community app", want: false},
		{name: "empty", tool: "", text: "", want: false},
		{name: "keyword in name only", tool: "SDK Studio", text: "organize your day", want: true},
		{name: "multi word keyword", tool: "", text: "the best package manager around", want: true},
		{name: "case insensitive", tool: "", text: "KUBERNETES operators made easy", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, HasDevtoolsKeywords(tt.tool, tt.text))
		})
	}
}

func TestHasDevtoolsKeywordsWordBoundary(t *testing.T) {
	t.Parallel()

	// Short abbreviations must not fire inside unrelated words.
	require.False(t, HasDevtoolsKeywords("", "the circus came to town"))
	require.False(t, HasDevtoolsKeywords("", "lucid dreaming journal"))
	require.True(t, HasDevtoolsKeywords("", "our CI runs on every commit"))
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	require.Equal(t, Fingerprint("Tool", "Desc"), Fingerprint("  tool ", " desc "))
	require.NotEqual(t, Fingerprint("tool", "desc"), Fingerprint("tool desc", ""))
	require.NotEqual(t, Fingerprint("a", "b"), Fingerprint("b", "a"))
}
