package main

import (
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hookweave/hookweave/loadtime"
)

func inspectCommand() *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "inspect <unit.tables.json> [more...]",
		Short: "show the ID spaces of one or more instrumented units",
		Long: "Registers the given unit tables in load order and prints the " +
			"base ID and count each unit gets per category, the way the " +
			"load-time registry would assign them.",
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			runInspect(args, dump)
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "dump the raw table structures")
	return cmd
}

func runInspect(paths []string, dump bool) {
	log := logWriter()
	reg := loadtime.NewRegistry()

	type row struct {
		unit string
		base map[loadtime.Category]int64
		u    *loadtime.UnitTables
	}
	var rows []row
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("reading %q: %v", path, err)
		}
		u, err := loadtime.UnmarshalUnitTables(data)
		if err != nil {
			log.Fatalf("%v", err)
		}
		rows = append(rows, row{unit: u.Unit, base: reg.Register(u), u: u})
	}

	bold := color.New(color.Bold)
	for _, r := range rows {
		bold.Printf("unit %s (init %s)\n", r.unit, r.u.InitFunc)
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"category", "base", "count", "base cell"})
		for _, c := range loadtime.Categories() {
			t := r.u.Table(c)
			if t == nil || len(t.Records) == 0 {
				continue
			}
			tw.Append([]string{
				c.String(),
				strconv.FormatInt(r.base[c], 10),
				strconv.Itoa(len(t.Records)),
				t.BaseCell,
			})
		}
		tw.Render()
		if dump {
			spew.Dump(r.u)
		}
	}

	bold.Println("totals")
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"category", "ids"})
	for _, c := range loadtime.Categories() {
		if reg.Total(c) == 0 {
			continue
		}
		tw.Append([]string{c.String(), strconv.FormatInt(reg.Total(c), 10)})
	}
	tw.Render()
}
