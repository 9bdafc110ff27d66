package command

import (
	"fmt"

	"github.com/danmuck/onionoffers/internal/server"
	"github.com/spf13/cobra"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the onion message types carrying offers payloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, k := range server.KindViews() {
			mode := "buffered"
			if k.Streaming {
				mode = "streaming"
			}
			fmt.Fprintf(out, "%d\t%s\t%s\n", k.Type, k.Name, mode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
