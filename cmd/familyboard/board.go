package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"familyboard/internal/calendar"
)

func init() {
	boardCmd := &cobra.Command{
		Use:   "board",
		Short: "Print the board as JSON",
		RunE:  runBoard,
	}
	boardCmd.Flags().String("from", "today", `First day: 2025-03-10, "tomorrow", "next monday", ...`)
	boardCmd.Flags().Int("days", 0, "Number of days (default from config)")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Print the normalized events of one source as JSON",
		RunE:  runEvents,
	}
	eventsCmd.Flags().StringP("source", "s", "", "Source id (required)")
	eventsCmd.Flags().String("from", "today", "First day")
	eventsCmd.Flags().Int("days", 1, "Number of days")
	_ = eventsCmd.MarkFlagRequired("source")

	rootCmd.AddCommand(boardCmd, eventsCmd)
}

func runBoard(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	fromExpr, _ := cmd.Flags().GetString("from")
	days, _ := cmd.Flags().GetInt("days")

	from, err := calendar.ParseDay(fromExpr, time.Now(), a.loc)
	if err != nil {
		return err
	}
	b, err := a.svc.Board(cmd.Context(), from, days)
	if err != nil {
		return err
	}
	return printJSON(b)
}

func runEvents(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	sourceID, _ := cmd.Flags().GetString("source")
	fromExpr, _ := cmd.Flags().GetString("from")
	days, _ := cmd.Flags().GetInt("days")

	from, err := calendar.ParseDay(fromExpr, time.Now(), a.loc)
	if err != nil {
		return err
	}
	if days <= 1 {
		events, err := a.svc.EventsForDay(cmd.Context(), sourceID, from)
		if err != nil {
			return err
		}
		return printJSON(events)
	}
	events, err := a.svc.EventsForRange(cmd.Context(), sourceID, from, from.AddDate(0, 0, days))
	if err != nil {
		return err
	}
	return printJSON(events)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
