package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "github.com/Egg3901/corpgame-sub004/internal/cli"
)

func main() {
	apiBase := envOr("CORPGAME_API_URL", "http://localhost:8080")
	userID := envOr("CORPGAME_USER_ID", "corpctl")

	root := &cobra.Command{
		Use:          "corpctl",
		Short:        "corpgame admin and inspection CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")
	root.PersistentFlags().StringVar(&userID, "user", userID, "caller user id")

	root.AddCommand(
		newRunTurnCmd(&apiBase, &userID),
		newRecalcCmd(&apiBase, &userID),
		newAdvanceTimeCmd(&apiBase, &userID),
		newSetTimeCmd(&apiBase, &userID),
		newResolveDueCmd(&apiBase, &userID),
		newPricesCmd(&apiBase, &userID),
		newLeaderboardCmd(&apiBase, &userID),
		newCorpCmd(&apiBase, &userID),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func adminClient(apiBase, userID *string) *cl.Client {
	return cl.NewClient(*apiBase, *userID, true)
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 60*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunTurnCmd(apiBase, userID *string) *cobra.Command {
	var period int64 = -1
	cmd := &cobra.Command{
		Use:   "run-turn",
		Short: "Run the turn for the current period (or --period)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			var p *int64
			if period >= 0 {
				p = &period
			}
			out, err := adminClient(apiBase, userID).RunTurn(ctx, p)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().Int64Var(&period, "period", -1, "period to process (default: current)")
	return cmd
}

func newRecalcCmd(apiBase, userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Force share price recalculation for every corporation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := adminClient(apiBase, userID).Recalc(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newAdvanceTimeCmd(apiBase, userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "advance-time <duration>",
		Short: "Shift game time forward (e.g. 24h, 96h)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := adminClient(apiBase, userID).AdvanceTime(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newSetTimeCmd(apiBase, userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-time <year> <quarter>",
		Short: "Fast-forward game time to the start of a calendar quarter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("year must be an integer: %w", err)
			}
			quarter, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quarter must be an integer: %w", err)
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := adminClient(apiBase, userID).SetTime(ctx, year, quarter)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newResolveDueCmd(apiBase, userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-due",
		Short: "Resolve every expired board proposal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := adminClient(apiBase, userID).ResolveDue(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newPricesCmd(apiBase, userID *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices [name]",
		Short: "Show current prices, or one name's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := adminClient(apiBase, userID)
			if len(args) == 1 {
				out, err := client.PriceHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(out)
			}
			out, err := client.Prices(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	return cmd
}

func newLeaderboardCmd(apiBase, userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Corporations ranked by market cap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := adminClient(apiBase, userID).Leaderboard(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newCorpCmd(apiBase, userID *string) *cobra.Command {
	var txLimit int
	cmd := &cobra.Command{
		Use:   "corp <id>",
		Short: "Inspect one corporation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corpID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid corporation id %q", args[0])
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := adminClient(apiBase, userID)
			out, err := client.Corporation(ctx, corpID)
			if err != nil {
				return err
			}
			if err := printJSON(out); err != nil {
				return err
			}
			if txLimit > 0 {
				txs, err := client.Transactions(ctx, corpID, txLimit)
				if err != nil {
					return err
				}
				return printJSON(txs)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&txLimit, "transactions", 0, "also print the last N transactions")
	return cmd
}
