package main

import (
	"github.com/AnMoreNight/Simple-AICATS/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

// serveCmd starts the HTTP front-end
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the diagnosis API",
	Long: `Routes:
  GET  /api/health
  GET  /api/diagnosis/status
  POST /api/diagnosis/start            (text/event-stream)
  GET  /api/respondents/:id/diagnosis`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, closeEval, err := buildService(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEval(); err != nil {
			logger.Warn("close evaluator", zap.Error(err))
		}
	}()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return server.New(svc, st, logger).ListenAndServe(ctx, addr)
}
