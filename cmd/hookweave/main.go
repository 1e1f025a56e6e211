// Command hookweave instruments a serialized program unit with
// analysis hook calls, and inspects the tables instrumented units
// produce.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hookweave/hookweave/common"
)

var (
	flagConfig  string
	flagLogfile string
	flagVerbose int
)

func main() {
	root := &cobra.Command{
		Use:           "hookweave",
		Short:         "insert analysis hooks into a program's control-flow representation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "instrumentation configuration file (JSON or YAML)")
	root.PersistentFlags().StringVar(&flagLogfile, "logfile", "", "write logs to this file instead of stderr")
	root.PersistentFlags().IntVarP(&flagVerbose, "verbose", "v", 0, "verbosity level")

	root.AddCommand(instrumentCommand())
	root.AddCommand(inspectCommand())
	root.AddCommand(versionCommand())

	if err := root.Execute(); err != nil {
		common.GetLogWriter().Printf("%v", err)
		os.Exit(1)
	}
}

func logWriter() *common.LogWriter {
	return common.NewLogWriter(flagLogfile, flagVerbose)
}
