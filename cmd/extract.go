package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/source"
)

var extractCommand = &cobra.Command{
	Use:   "extract",
	Short: "extract and print the assertions of a P4 program without verifying",
	Long:  ``,
	Run: func(*cobra.Command, []string) {
		if err := extractExec(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	extractCommand.Flags().StringVar(&ExtractFile, "file", "", "P4 source file")
}

var (
	ExtractFile string
)

func extractExec() error {
	data, err := os.ReadFile(ExtractFile)
	if err != nil {
		return err
	}
	assertions, err := source.Extract(ExtractFile, data)
	if err != nil {
		return err
	}
	for _, a := range assertions {
		fmt.Printf("%-6s %s  %s\n", a.ID, a.Location(), a.Description)
	}
	fmt.Printf("total %d assertions\n", len(assertions))
	return nil
}
