package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
)

var replayDraft bool

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <failed-edits.json>...",
		Short: "Resubmit the edits saved by a failed bulk submission",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newStoreClient(cmd.Context())
			if err != nil {
				return err
			}
			opts := neolace.BulkOptions{
				ConnectionID:     util.GetEnvString("NEOLACE_CONNECTION_ID", "openalex"),
				CreateConnection: true,
			}
			for _, path := range args {
				if err := replayFile(cmd.Context(), client, path, opts, replayDraft); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&replayDraft, "draft", false, "Submit through a draft that is accepted afterwards")
	return cmd
}

// replayFile submits the edits stored in path. The file is removed once the
// store accepted them.
func replayFile(ctx context.Context, client neolace.Client, path string, opts neolace.BulkOptions, viaDraft bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	edits, err := edit.DecodeList(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("Replaying edits", "file", path, "count", len(edits), "draft", viaDraft)

	if viaDraft {
		draftID, err := client.CreateDraft(ctx, neolace.Draft{
			Title:       "Replay " + filepath.Base(path),
			Description: "Edits of a failed OpenAlex bulk import",
			Edits:       edits,
		})
		if err != nil {
			return fmt.Errorf("%s: create draft: %w", path, err)
		}
		if err := client.AcceptDraft(ctx, draftID); err != nil {
			return fmt.Errorf("%s: accept draft %s: %w", path, draftID, err)
		}
	} else if err := client.PushBulkEdits(ctx, edits, opts); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return os.Remove(path)
}
