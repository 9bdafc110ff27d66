package command

import (
	"fmt"
	"os"

	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/protocol/frame"
	"github.com/danmuck/onionoffers/internal/server"
	"github.com/spf13/cobra"
)

var replayReplies string

var replayCmd = &cobra.Command{
	Use:   "replay [capture-file]",
	Short: "Dispatch every envelope in a capture file through the responder",
	Long: `Replay reads a capture file, decodes each frame concurrently and hands the
messages to the configured responder. Each result is printed as one JSON
document; replies can be written to another capture file with --replies.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		defer f.Close()
		frames, err := frame.ReadAll(f, captureLimits())
		if err != nil {
			return err
		}

		envs := make([]onionmsg.Envelope, 0, len(frames))
		for _, fr := range frames {
			envs = append(envs, onionmsg.Envelope{Type: fr.Header.Type, Payload: fr.Payload})
		}
		d, _, err := newDispatcher()
		if err != nil {
			return err
		}
		results, err := d.Dispatch(cmd.Context(), envs)
		if err != nil {
			return err
		}

		var replies *frame.Writer
		if replayReplies != "" {
			out, err := os.Create(replayReplies)
			if err != nil {
				return fmt.Errorf("create replies capture: %w", err)
			}
			defer out.Close()
			replies = frame.NewWriter(out, captureLimits())
		}

		counts := map[onionmsg.Outcome]int{}
		for _, r := range results {
			counts[r.Outcome]++
			if err := writeJSON(cmd.OutOrStdout(), server.NewResultView(r)); err != nil {
				return err
			}
			if env, ok := r.ReplyEnvelope(); ok && replies != nil {
				if err := replies.Write(env.Type, env.Payload, frame.FlagReply); err != nil {
					return err
				}
			}
		}
		logs.Infof(
			"replay frames=%d decoded=%d invalid_value=%d malformed=%d unknown_type=%d",
			len(results),
			counts[onionmsg.OutcomeDecoded],
			counts[onionmsg.OutcomeInvalidValue],
			counts[onionmsg.OutcomeMalformed],
			counts[onionmsg.OutcomeUnknownType],
		)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayReplies, "replies", "", "write replies to this capture file")
	rootCmd.AddCommand(replayCmd)
}
