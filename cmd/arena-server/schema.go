package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

var schemaName string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the wire messages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		schemas := protocol.Schemas()
		var out any = schemas
		if schemaName != "" {
			s, ok := schemas[schemaName]
			if !ok {
				return fmt.Errorf("unknown message %q", schemaName)
			}
			out = s
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaName, "message", "", "only print this message (handshake_request, handshake_ack, step, action)")
}
