package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vishalbelsare/LibMultiLabel/internal/config"
	"github.com/vishalbelsare/LibMultiLabel/internal/search"
)

var (
	expandFull   bool
	expandParams bool
)

// expandCmd materializes a search space without training anything
var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Show the concrete configurations of a search space",
	Long: `Expands the search directives in the configuration file and shows what a
sweep over it would train, without running anything.

By default prints one line per search parameter with its candidate values.
With --params, prints a table with one row per combination. With --full,
dumps every concrete configuration as a multi-document YAML stream, ready
to be split into individual train runs.

Examples:
  multilabel expand -c grid.yml
  multilabel expand -c grid.yml --params
  multilabel expand -c grid.yml --full > combinations.yml`,
	RunE: runExpand,
}

func runExpand(cmd *cobra.Command, args []string) error {
	rec, err := loadRecord()
	if err != nil {
		return err
	}
	if err := config.ValidateRecord(rec); err != nil {
		return err
	}
	x, err := search.Expand(rec)
	if err != nil {
		return err
	}

	if expandFull {
		return dumpRecords(x)
	}

	dirs := x.Directives()
	fmt.Printf("%d combinations from %d search parameters\n", x.Len(), len(dirs))

	if expandParams {
		headers := make([]string, 0, len(dirs)+1)
		headers = append(headers, "#")
		for _, d := range dirs {
			headers = append(headers, d.Path)
		}
		rows := make([][]string, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			vals, err := x.Assignment(i)
			if err != nil {
				return err
			}
			rows = append(rows, append([]string{strconv.Itoa(i)}, vals...))
		}
		fmt.Print(renderTable(headers, rows))
		return nil
	}

	for _, d := range dirs {
		labels := make([]string, len(d.Candidates))
		for i, c := range d.Candidates {
			labels[i] = search.Label(c)
		}
		fmt.Printf("  %s: %s over [%s]\n", d.Path, d.Strategy, strings.Join(labels, ", "))
	}
	return nil
}

// dumpRecords writes every combination as one YAML document.
func dumpRecords(x *search.Expansion) error {
	it := x.Records()
	first := true
	for rec, ok := it.Next(); ok; rec, ok = it.Next() {
		data, err := rec.Encode()
		if err != nil {
			return err
		}
		if !first {
			fmt.Println("---")
		}
		first = false
		fmt.Print(string(data))
	}
	return nil
}

func init() {
	expandCmd.Flags().BoolVar(&expandFull, "full", false, "Dump every concrete configuration as YAML")
	expandCmd.Flags().BoolVar(&expandParams, "params", false, "Print one table row per combination")
}
