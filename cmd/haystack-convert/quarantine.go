package main

import (
	"fmt"
	"time"

	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

func newQuarantineCommand(root *rootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect spans that failed conversion",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "BoltDB quarantine file")
	if err := cmd.MarkPersistentFlagRequired("path"); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		newQuarantineListCommand(root, &path),
		newQuarantinePruneCommand(root, &path),
	)
	return cmd
}

type listedRecord struct {
	Key           string    `json:"key"`
	Source        string    `json:"source"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantinedAt"`
	Payload       string    `json:"payload"`
}

func newQuarantineListCommand(root *rootOptions, path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print quarantined spans, one JSON object per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := quarantine.Open(quarantine.Config{Path: *path}, root.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(cmd.OutOrStdout())
			defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)
			for _, rec := range records {
				stream.WriteVal(listedRecord{
					Key:           fmt.Sprintf("%016x", rec.Key),
					Source:        rec.Source,
					Reason:        rec.Reason,
					QuarantinedAt: rec.QuarantinedAt,
					Payload:       string(rec.Payload),
				})
				stream.WriteRaw("\n")
			}
			if stream.Error != nil {
				return stream.Error
			}
			return stream.Flush()
		},
	}
}

func newQuarantinePruneCommand(root *rootOptions, path *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove quarantined spans older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("older-than must be positive, got %s", olderThan)
			}
			store, err := quarantine.Open(quarantine.Config{Path: *path}, root.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Minimum age of removed records")
	return cmd
}
