package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/args"
	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/pipeline"
)

// compareSpec adds the global flags to args.CompareSpec. Compare parses
// its own command line so flags may appear between compound identifiers.
func compareSpec() args.Spec {
	spec := args.CompareSpec
	spec.Flags = append(append([]args.Flag(nil), spec.Flags...),
		args.Flag{Name: "config", Value: true, Usage: "path to config file"},
		args.Flag{Name: "verbose", Short: "v", Usage: "enable debug logging"},
	)
	return spec
}

var compareCmd = &cobra.Command{
	Use:   "compare <id1> <id2> [more...] [--names \"A,B\"] [--output report.pdf] [--format pdf|json]",
	Short: "Compare two or more compounds and write a report",
	Long: `Compare runs the comparison script on the given SMILES strings, names or
PubChem CIDs and pipes its result into the report generator.

Without --output the report is written to the current directory as
comparison_report_<YYYY-MM-DD>.<format>.`,
	Example: `  pharmaclaw compare "CC(=O)Oc1ccccc1C(=O)O" "CC(C)Cc1ccc(cc1)C(C)C(=O)O" --names "Aspirin,Ibuprofen"
  pharmaclaw compare aspirin ibuprofen naproxen --format json -o nsaids.json`,
	DisableFlagParsing: true,
	RunE:               runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, tokens []string) error {
	res, err := args.Partition(tokens, compareSpec())
	if err != nil {
		return err
	}
	if res.Help {
		return cmd.Help()
	}
	if res.Has("config") {
		configPath = res.Value("config")
	}
	if res.Bool("verbose") {
		verbose = true
		setupLogging()
	}

	req := pipeline.CompareRequest{
		Compounds: res.Positional,
		Names:     args.SplitList(res.Value("names")),
		Output:    res.Value("output"),
		Format:    res.Value("format"),
	}
	if req.Output == "" {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		req.OutputDir = dir
	}

	return withGateway(func(gw *gateway.Gateway) error {
		result, err := gw.Compare(cmd.Context(), req, chain.IO{
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", result.OutputPath)
		return nil
	})
}
