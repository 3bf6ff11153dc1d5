package classify

import (
	"regexp"
	"strings"
)

// devtoolsKeywords is the fixed vocabulary for the pre-filter. Matching is on
// word boundaries so short entries like "CI" do not fire inside unrelated
// words ("circus").
var devtoolsKeywords = []string{
	"developer", "devtool", "CLI", "SDK", "API", "code", "coding", "debug", "git",
	"CI", "CD", "DevOps", "terminal", "IDE", "framework", "testing", "monitoring",
	"observability", "build", "deploy", "infra", "cloud-native", "backend", "log",
	"linter", "formatter", "package manager", "dependency", "compiler", "interpreter",
	"container", "kubernetes", "docker", "microservice", "serverless", "database",
	"query", "schema", "migration", "deployment", "orchestration", "automation",
}

var keywordPattern = compileKeywordPattern(devtoolsKeywords)

func compileKeywordPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(kw)))
	}
	// Optional plural suffix so "developers" or "containers" still match,
	// while keeping the boundary that stops "CI" firing inside "circus".
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)(?:s|es)?\b`)
}

// HasDevtoolsKeywords reports whether any vocabulary keyword appears in the
// concatenated name and text. Pure function; needs no network and serves as
// the last fallback tier when the remote classifier is unavailable.
func HasDevtoolsKeywords(name, text string) bool {
	return keywordPattern.MatchString(strings.ToLower(name + " " + text))
}
