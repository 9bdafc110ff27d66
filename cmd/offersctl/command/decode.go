package command

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/server"
	"github.com/spf13/cobra"
)

var (
	decodeType uint64
	decodeFile string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [payload-hex]",
	Short: "Decode one offers payload",
	Long: `Decode one offers payload given as hex, or as raw bytes with --file
("-" reads stdin). Prints the message as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !onionmsg.IsKnownType(decodeType) {
			return fmt.Errorf("type %d is not an offers message", decodeType)
		}
		src, closeSrc, err := decodeSource(cmd, args)
		if err != nil {
			return err
		}
		defer closeSrc()

		msg, err := newCodec().Decode(decodeType, src)
		if err != nil {
			return fmt.Errorf("decode type %d (%s): %w", decodeType, onionmsg.Classify(err), err)
		}
		return writeJSON(cmd.OutOrStdout(), server.MessageView(msg))
	},
}

func decodeSource(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	switch {
	case decodeFile == "-":
		return cmd.InOrStdin(), func() {}, nil
	case decodeFile != "":
		f, err := os.Open(decodeFile)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	case len(args) == 1:
		raw, err := hex.DecodeString(strings.TrimSpace(args[0]))
		if err != nil {
			return nil, nil, fmt.Errorf("payload hex: %w", err)
		}
		return strings.NewReader(string(raw)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("payload hex argument or --file required")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	decodeCmd.Flags().Uint64Var(&decodeType, "type", onionmsg.InvoiceRequestType, "onion message TLV type")
	decodeCmd.Flags().StringVar(&decodeFile, "file", "", "read raw payload bytes from a file, - for stdin")
	rootCmd.AddCommand(decodeCmd)
}
