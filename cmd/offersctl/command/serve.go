package command

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/onionoffers/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the decode and dispatch HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		d, _, err := newDispatcher()
		if err != nil {
			return err
		}
		gin.SetMode(gin.ReleaseMode)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.New(cfg.Server, newCodec(), d).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides [server] addr")
	rootCmd.AddCommand(serveCmd)
}
