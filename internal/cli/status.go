package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Herald/internal/domain"
	"github.com/shaiso/Herald/internal/status"
)

// NewStatusCmd создаёт команду просмотра статусов доставки.
func NewStatusCmd(statusFn StatusFn, outputFn OutputFn) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID [ID...]",
		Short: "Show delivery status of notifications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := statusFn()
			if err != nil {
				return err
			}
			out := outputFn()

			var found []domain.DeliveryStatus
			for _, id := range args {
				ds, err := store.Get(cmd.Context(), id)
				if errors.Is(err, status.ErrNotFound) {
					out.Error(fmt.Sprintf("no status for %s (unknown or expired)", id))
					continue
				}
				if err != nil {
					return err
				}
				found = append(found, *ds)
			}

			if len(found) == 0 {
				return fmt.Errorf("no statuses found")
			}

			headers := []string{"NOTIFICATION_ID", "STATUS", "TIMESTAMP", "ERROR"}
			rows := make([][]string, len(found))
			for i, ds := range found {
				rows[i] = []string{ds.NotificationID, ds.Status.String(), ds.Timestamp.Format(time.RFC3339), ds.ErrorText()}
			}

			out.Print(headers, rows, found)
			return nil
		},
	}
}
