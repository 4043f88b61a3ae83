package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"exam", "/exam"},
		{"/exam/", "/exam"},
		{"/vi/exam", "/vi/exam"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeBasePath(tt.in), "normalizeBasePath(%q)", tt.in)
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "import", "export"} {
		_, _, err := root.Find([]string{name})
		assert.NoError(t, err, "subcommand %q", name)
	}
	for _, flag := range []string{"addr", "db", "upload-dir", "lang", "redis-addr", "llm-url", "base-path", "attempt-retention"} {
		assert.NotNil(t, root.Flags().Lookup(flag), "root is missing serve flag --%s", flag)
	}
}
