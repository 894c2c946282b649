package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var flagsOut string

// flagsCmd regenerates the flag reference table in the documentation
var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Generate the reST table of CLI flags for the documentation",
	Long: `Walks every command and renders its flags as the reStructuredText table
the documentation build includes. Regenerate after adding or changing a
flag:

  multilabel flags --out docs/cli/flags.rst`,
	RunE: runFlags,
}

func runFlags(cmd *cobra.Command, args []string) error {
	table := flagTable(rootCmd)
	if flagsOut == "" {
		fmt.Print(table)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(flagsOut), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(flagsOut, []byte(table), 0644); err != nil {
		return fmt.Errorf("failed to write flag table: %w", err)
	}
	fmt.Printf("Wrote %s\n", flagsOut)
	return nil
}

type flagRow struct {
	name string
	desc string
}

// flagTable renders the flags of root and every subcommand as a reST
// simple table. Repeated flags (shared between commands) appear once.
func flagTable(root *cobra.Command) string {
	var rows []flagRow
	seen := make(map[string]bool)
	add := func(f *pflag.Flag) {
		if seen[f.Name] || f.Hidden {
			return
		}
		seen[f.Name] = true
		// reST needs the leading dashes escaped
		name := `\-\-` + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ` \-\-` + f.Name
		}
		rows = append(rows, flagRow{name, strings.TrimRight(f.Usage, ".") + "."})
	}

	root.PersistentFlags().VisitAll(add)
	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		c.Flags().VisitAll(add)
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(root)

	wn, wd := len("Name"), len("Description")
	for _, r := range rows {
		if len(r.name) > wn {
			wn = len(r.name)
		}
		if len(r.desc) > wd {
			wd = len(r.desc)
		}
	}

	var b strings.Builder
	b.WriteString("..\n    Do not modify this file. This file is generated by the flags command.\n\n")
	ruler := strings.Repeat("=", wn) + " " + strings.Repeat("=", wd) + "\n"
	b.WriteString(ruler)
	fmt.Fprintf(&b, "%-*s %-*s\n", wn, "Name", wd, "Description")
	b.WriteString(ruler)
	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s %-*s\n", wn, r.name, wd, r.desc)
	}
	b.WriteString(ruler)
	return b.String()
}

func init() {
	flagsCmd.Flags().StringVar(&flagsOut, "out", "", "Write the table to this file instead of stdout")
}
