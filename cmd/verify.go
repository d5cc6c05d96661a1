package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/assertp4"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/config"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/exploration"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/verdict"
)

var verifyCommand = &cobra.Command{
	Use:   "verify",
	Short: "verify P4 assertions",
	Long: `Compiles the P4 program, instruments its assertions as traps, explores
the result symbolically within the given budget and writes a verdict.

Exit codes: 0 verdict pass, 1 verdict fail, 10-12 source preparation errors,
20-22 lowering errors, 30-31 exploration errors, 99 internal.`,
	Run: func(*cobra.Command, []string) {
		os.Exit(verifyExec())
	},
}

var (
	P4File     string
	RulesFile  string
	ConfigFile string
	OutputFile string
	TimeLimit  time.Duration
	MaxPaths   int
	Retain     bool
)

func init() {
	verifyCommand.Flags().StringVar(&P4File, "file", "", "P4 source file to verify")
	verifyCommand.Flags().StringVar(&RulesFile, "rules", "", "forwarding rules file passed to the compiler")
	verifyCommand.Flags().StringVar(&ConfigFile, "config", "", "tool configuration file (YAML)")
	verifyCommand.Flags().StringVar(&OutputFile, "out", "-", "verdict destination, - for stdout")
	verifyCommand.Flags().DurationVar(&TimeLimit, "time-limit", 300*time.Second, "exploration wall-clock budget, 0 to disable")
	verifyCommand.Flags().IntVar(&MaxPaths, "max-paths", 0, "exploration path-count budget, 0 to disable")
	verifyCommand.Flags().BoolVar(&Retain, "retain", false, "keep intermediate artifacts for debugging")
}

func verifyExec() int {
	cfg, err := config.Load(ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return fault.Internal.ExitCode()
	}

	runner := &assertp4.Runner{
		Config: cfg,
		Budget: exploration.Budget{
			TimeLimit: TimeLimit,
			MaxPaths:  MaxPaths,
		},
		Retain:     Retain,
		OutputPath: OutputFile,
		RulesPath:  RulesFile,
	}

	v, err := runner.Run(context.Background(), P4File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return fault.ExitCode(err)
	}
	if v.Result == verdict.ResultFail {
		return fault.ExitFail
	}
	return fault.ExitPass
}
