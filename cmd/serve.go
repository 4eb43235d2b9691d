package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bennycortese/graphite-control-plane/internal/bridge"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stack over a websocket for remote views.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.ServeAddr
			}
			hub := bridge.NewHub()
			st, err := openStack(hub)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bridge.NewServer(hub, st.host).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default serve_addr from config)")
	return cmd
}
