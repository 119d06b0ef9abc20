package main

import (
	"fmt"

	"github.com/repromitra/telehealth/libs/pseudonym"
	"github.com/spf13/cobra"
)

func pseudonymCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "pseudonym",
		Short: "Print freshly generated patient pseudonyms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be positive")
			}
			for i := 0; i < count; i++ {
				p, err := pseudonym.Generate()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "how many to print")
	return cmd
}
