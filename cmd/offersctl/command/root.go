// Package command implements the offersctl command tree.
package command

import (
	"fmt"
	"os"

	"github.com/danmuck/onionoffers/internal/config"
	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/observability"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/responder"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded before every command runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "offersctl",
	Short: "offersctl - inspect and answer BOLT 12 onion message payloads",
	Long: `offersctl decodes, encodes and dispatches the offers payloads carried in
onion messages: invoice_request (64), invoice (66) and invoice_error (68).

Use "offersctl command -h" to see the flags of each command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

// Execute runs the root command. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override [log] level")
}

func loadConfig() error {
	cfg = config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	logs.Apply(cfg.Logging())
	observability.InitLogger("offersctl")
	return nil
}

func newCodec() onionmsg.Codec {
	return cfg.NewCodec(logs.NewSink(logs.Logger()))
}

func newDispatcher() (*onionmsg.Dispatcher, *responder.Responder, error) {
	r, err := responder.FromConfig(cfg.Responder)
	if err != nil {
		return nil, nil, err
	}
	return cfg.NewDispatcher(newCodec(), r, observability.DecodeObserver{}), r, nil
}
