package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Herald/internal/domain"
)

// SendTarget — куда публиковать тестовое уведомление.
type SendTarget struct {
	Exchange   string
	RoutingKey string
}

// NewSendCmd создаёт команду публикации уведомления в очередь.
func NewSendCmd(publisherFn PublisherFn, target *SendTarget, outputFn OutputFn) *cobra.Command {
	var (
		id            string
		correlationID string
		templateCode  string
		email         string
		vars          []string
		priority      int
		emailDisabled bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a notification to the delivery queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target.Exchange == "" || target.RoutingKey == "" {
				return fmt.Errorf("exchange and routing key are required")
			}
			if priority < 0 || priority > 9 {
				return fmt.Errorf("priority must be between 0 and 9, got %d", priority)
			}

			variables, err := parseVars(vars)
			if err != nil {
				return err
			}

			if id == "" {
				id = uuid.New().String()
			}
			if correlationID == "" {
				correlationID = id
			}

			emailEnabled := !emailDisabled
			msg := domain.NotificationMessage{
				NotificationID: id,
				CorrelationID:  correlationID,
				Type:           domain.NotificationTypeEmail,
				TemplateCode:   templateCode,
				Variables:      variables,
				Priority:       priority,
				Preferences:    &domain.UserPreferences{Email: &emailEnabled},
				Contact:        &domain.UserContact{Email: email},
			}

			pub, err := publisherFn()
			if err != nil {
				return err
			}

			if err := pub.PublishJSON(cmd.Context(), target.Exchange, target.RoutingKey, msg, uint8(priority)); err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Notification queued: %s", id))
			out.Print(
				[]string{"NOTIFICATION_ID", "TEMPLATE", "EMAIL", "PRIORITY"},
				[][]string{{id, templateCode, email, fmt.Sprint(priority)}},
				msg,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Notification ID (generated if not specified)")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation ID (defaults to notification ID)")
	cmd.Flags().StringVar(&templateCode, "template", "", "Template code")
	cmd.Flags().StringVar(&email, "email", "", "Recipient email address")
	cmd.Flags().StringSliceVar(&vars, "var", nil, "Template variables as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Message priority (0-9)")
	cmd.Flags().BoolVar(&emailDisabled, "email-disabled", false, "Mark email as disabled in user preferences")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

// parseVars разбирает список KEY=VALUE.
func parseVars(kvs []string) (map[string]any, error) {
	vars := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable format %q, expected KEY=VALUE", kv)
		}
		vars[key] = value
	}
	return vars, nil
}
