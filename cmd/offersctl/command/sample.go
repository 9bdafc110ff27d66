package command

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/protocol/frame"
	"github.com/danmuck/onionoffers/internal/responder"
	"github.com/spf13/cobra"
)

var sampleCount int

var sampleCmd = &cobra.Command{
	Use:   "sample [capture-file]",
	Short: "Write a capture file of sample envelopes for the configured offer",
	Long: `Sample writes signed invoice requests for the [responder] offer, one
invoice_error, one truncated request and one envelope of an unrelated type.
Set [responder] node_secret_hex so replay answers with the same key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := responder.FromConfig(cfg.Responder)
		if err != nil {
			return err
		}
		out, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer out.Close()
		w := frame.NewWriter(out, captureLimits())
		codec := newCodec()

		var last []byte
		for i := 0; i < sampleCount; i++ {
			payer, err := btcec.NewPrivateKey()
			if err != nil {
				return err
			}
			params := offers.InvoiceRequestParams{
				PayerMetadata: []byte(fmt.Sprintf("sample-%d", i)),
				PayerNote:     fmt.Sprintf("sample request %d", i),
			}
			if r.Offer.ExpectsQuantity() {
				params.Quantity = 1
			}
			if r.Offer.AmountMsats == 0 {
				params.AmountMsats = 1000
			}
			req, err := offers.NewInvoiceRequest(r.Offer, payer, params)
			if err != nil {
				return err
			}
			msg := onionmsg.InvoiceRequestMessage{Request: req}
			last = codec.Encode(msg)
			if err := w.Write(onionmsg.TypeOf(msg), last, 0); err != nil {
				return err
			}
		}

		ie := onionmsg.InvoiceErrorMessage{Error: offers.NewInvoiceError("sample error")}
		if err := w.Write(onionmsg.TypeOf(ie), codec.Encode(ie), 0); err != nil {
			return err
		}
		if len(last) > 2 {
			if err := w.Write(onionmsg.InvoiceRequestType, last[:len(last)-2], 0); err != nil {
				return err
			}
		}
		if err := w.Write(1, []byte{0x00}, 0); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s\n", sampleCount+3, args[0])
		return nil
	},
}

func init() {
	sampleCmd.Flags().IntVar(&sampleCount, "count", 3, "number of invoice requests")
	rootCmd.AddCommand(sampleCmd)
}
