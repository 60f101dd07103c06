package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestNormalizeArgs(t *testing.T) {
	long := map[string]bool{"runs": true, "movie": true, "frames": true, "verbose": true}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single dash", "batch in 2 out -runs 5 -movie", "batch in 2 out --runs 5 --movie"},
		{"with value", "batch in 2 out -frames=60", "batch in 2 out --frames=60"},
		{"already double", "batch in 2 out --runs 5", "batch in 2 out --runs 5"},
		{"shorthand untouched", "batch in 2 out -h", "batch in 2 out -h"},
		{"unknown untouched", "batch in 2 out -bogus", "batch in 2 out -bogus"},
		{"negative number", "batch in -1 out", "batch in -1 out"},
		{"after terminator", "batch -- -runs", "batch -- -runs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(normalizeArgs(strings.Fields(tt.in), long), " ")
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLongFlags(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().String("data", "", "")
	sub := &cobra.Command{Use: "batch"}
	sub.Flags().Int("runs", 0, "")
	root.AddCommand(sub)

	names := longFlags(root)
	if !names["data"] || !names["runs"] {
		t.Errorf("missing flags: %v", names)
	}
}
