package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/pipeline"
	"pharmaclaw/src/internal/watchlist"
)

var watchlistCmd = &cobra.Command{
	Use:     "watchlist",
	Aliases: []string{"watch"},
	Short:   "Manage the compound watchlist",
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched compounds",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			entries, err := gw.Storage.ListWatchlist()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("Watchlist is empty.")
				return nil
			}
			for _, e := range entries {
				cmd.Printf("%s  %s  %s\n", e.ID, e.Label(), e.Compound)
				if e.Notes != "" {
					cmd.Printf("  %s\n", e.Notes)
				}
			}
			return nil
		})
	},
}

var watchEntry watchlist.Entry

var watchlistAddCmd = &cobra.Command{
	Use:   "add <compound>",
	Short: "Add a SMILES string, name or PubChem CID to the watchlist",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		e := watchlist.Entry{Compound: argv[0], Name: watchEntry.Name, Notes: watchEntry.Notes}
		return withGateway(func(gw *gateway.Gateway) error {
			if err := gw.AddWatch(&e); err != nil {
				return err
			}
			cmd.Printf("Added %s (%s)\n", e.Label(), e.ID)
			return nil
		})
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an entry from the watchlist",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, argv []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			if err := gw.Storage.DeleteWatch(argv[0]); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("watchlist entry %s not found", argv[0])
				}
				return err
			}
			cmd.Printf("Removed %s\n", argv[0])
			return nil
		})
	},
}

var (
	reportOutput string
	reportFormat string
)

var watchlistReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare every watched compound in one report",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGateway(func(gw *gateway.Gateway) error {
			entries, err := gw.Storage.ListWatchlist()
			if err != nil {
				return err
			}
			ids, names := watchlist.Compounds(entries)
			req := pipeline.CompareRequest{Compounds: ids, Names: names, Output: reportOutput, Format: reportFormat}
			if req.Output == "" {
				if req.OutputDir, err = os.Getwd(); err != nil {
					return err
				}
			}
			result, err := gw.Compare(cmd.Context(), req, chain.IO{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", result.OutputPath)
			return nil
		})
	},
}

func init() {
	watchlistAddCmd.Flags().StringVar(&watchEntry.Name, "name", "", "display name used in reports")
	watchlistAddCmd.Flags().StringVar(&watchEntry.Notes, "notes", "", "free-form notes")

	watchlistReportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "report path (default: comparison_report_<date>.<format>)")
	watchlistReportCmd.Flags().StringVar(&reportFormat, "format", "pdf", "report format: pdf or json")

	watchlistCmd.AddCommand(watchlistListCmd, watchlistAddCmd, watchlistRemoveCmd, watchlistReportCmd)
	rootCmd.AddCommand(watchlistCmd)
}
