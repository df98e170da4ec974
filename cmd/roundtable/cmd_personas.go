package main

import (
	"github.com/spf13/cobra"

	"github.com/ent0n29/roundtable/internal/persona"
)

var personasFlags struct {
	format string
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the characters that can join a discussion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := validFormat(personasFlags.format); err != nil {
			return err
		}
		return renderPersonas(cmd.OutOrStdout(), persona.Default().All(), personasFlags.format)
	},
}

func init() {
	personasCmd.Flags().StringVar(&personasFlags.format, "format", formatTable, "output format: table|markdown|json")
}
