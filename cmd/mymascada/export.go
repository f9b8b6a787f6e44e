package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digaomatias/mymascada/internal/export"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a monthly report to Google Sheets",
		Long: `Build a monthly report of income, spending by category, and
budget performance, and write it to a Google Sheets spreadsheet.`,
		RunE: runExport,
	}

	cmd.Flags().String("user", "", "user ID to export (required)")
	cmd.Flags().String("month", "", "month to export in YYYY-MM form (default: previous month)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	month, _ := cmd.Flags().GetString("month")
	if month == "" {
		month = time.Now().AddDate(0, -1, 0).Format("2006-01")
	}
	logger := slog.Default()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	report, err := export.BuildMonthlyReport(cmd.Context(), store, userID, month)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	writer, err := export.NewWriter(cmd.Context(), export.Config{
		SpreadsheetID:      viper.GetString("sheets.spreadsheet_id"),
		SpreadsheetName:    viper.GetString("sheets.spreadsheet_name"),
		ServiceAccountPath: viper.GetString("sheets.service_account_path"),
		ClientID:           viper.GetString("sheets.client_id"),
		ClientSecret:       viper.GetString("sheets.client_secret"),
		RefreshToken:       viper.GetString("sheets.refresh_token"),
		TimeZone:           viper.GetString("sheets.timezone"),
		EnableFormatting:   true,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create sheets writer: %w", err)
	}

	if err := writer.Write(cmd.Context(), report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Printf("Exported %s report (%d transactions)\n", month, len(report.Transactions))
	return nil
}
