package command

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/protocol/frame"
	"github.com/spf13/cobra"
)

var (
	errField     int64
	errSuggested string
	errCapture   string
)

var encodeErrorCmd = &cobra.Command{
	Use:   "encode-error [message]",
	Short: "Encode an invoice_error payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ie := offers.NewInvoiceError(args[0])
		if errField >= 0 {
			ie.ErroneousField = &offers.ErroneousField{TLVFieldNum: uint64(errField)}
			if errSuggested != "" {
				v, err := hex.DecodeString(errSuggested)
				if err != nil {
					return fmt.Errorf("suggested value hex: %w", err)
				}
				ie.ErroneousField.SuggestedValue = v
			}
		} else if errSuggested != "" {
			return fmt.Errorf("--suggested requires --field")
		}

		msg := onionmsg.InvoiceErrorMessage{Error: ie}
		payload := newCodec().Encode(msg)
		if errCapture != "" {
			if err := appendCapture(errCapture, onionmsg.TypeOf(msg), payload); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(payload))
		return nil
	},
}

func appendCapture(path string, typ uint64, payload []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return frame.NewWriter(f, captureLimits()).Write(typ, payload, 0)
}

func captureLimits() frame.Limits {
	limits := frame.DefaultLimits()
	if cfg.Codec.MaxPayloadBytes > 0 {
		limits.MaxPayloadBytes = uint64(cfg.Codec.MaxPayloadBytes)
	}
	return limits
}

func init() {
	encodeErrorCmd.Flags().Int64Var(&errField, "field", -1, "erroneous TLV field number")
	encodeErrorCmd.Flags().StringVar(&errSuggested, "suggested", "", "suggested value hex for --field")
	encodeErrorCmd.Flags().StringVar(&errCapture, "capture", "", "append the payload to a capture file")
	rootCmd.AddCommand(encodeErrorCmd)
}
