package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для кэша шаблонов.
func NewTemplateCmd(templatesFn TemplatesFn, outputFn OutputFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage cached templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate CODE [CODE...]",
		Short: "Drop templates from the cache so the next delivery refetches them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := templatesFn()
			if err != nil {
				return err
			}
			out := outputFn()

			for _, code := range args {
				if err := cache.Invalidate(cmd.Context(), code); err != nil {
					return fmt.Errorf("invalidate %s: %w", code, err)
				}
				out.Success(fmt.Sprintf("Template invalidated: %s", code))
			}
			return nil
		},
	})

	return cmd
}
