package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hookweave/hookweave/config"
	"github.com/hookweave/hookweave/instrumentor"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/toolmod"
)

func instrumentCommand() *cobra.Command {
	var (
		output   string
		manifest string
		tablesTo string
	)
	cmd := &cobra.Command{
		Use:   "instrument <unit.json>",
		Short: "instrument one serialized unit",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			runInstrument(args[0], output, manifest, tablesTo)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the instrumented unit here (default: overwrite input)")
	cmd.Flags().StringVar(&manifest, "manifest", "", "tool-module manifest to check symbol conflicts against")
	cmd.Flags().StringVar(&tablesTo, "tables", "", "write the unit tables here (default: <output>.tables.json)")
	return cmd
}

// runInstrument is the whole pipeline; every failure here is fatal,
// matching the contract that a unit is either fully instrumented and
// verified or not written at all.
func runInstrument(input, output, manifestPath, tablesTo string) {
	log := logWriter()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var m *toolmod.Manifest
	if manifestPath != "" {
		if m, err = toolmod.Read(manifestPath); err != nil {
			log.Fatalf("%v", err)
		}
	}

	data, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("reading %q: %v", input, err)
	}
	prog, err := ir.UnmarshalProgram(data)
	if err != nil {
		log.Fatalf("%v", err)
	}

	mi := instrumentor.CreateModuleInstrumentor(prog, cfg, m, log)
	unit, err := mi.Run()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if output == "" {
		output = input
	}
	out, err := ir.MarshalProgram(prog)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := os.WriteFile(output, out, 0644); err != nil {
		log.Fatalf("writing %q: %v", output, err)
	}

	if tablesTo == "" {
		tablesTo = output + ".tables.json"
	}
	tdata, err := unit.Marshal()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := os.WriteFile(tablesTo, tdata, 0644); err != nil {
		log.Fatalf("writing %q: %v", tablesTo, err)
	}

	if log.IsVerbose() {
		log.Printf("instrumented %s -> %s (tables %s)", input, output, tablesTo)
	}
}
