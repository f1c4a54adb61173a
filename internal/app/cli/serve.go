package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/interface/mcpserver"
)

// ServeAction は MCP サーバーを起動する
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	transport := cfg.Server.Transport
	if cmd.IsSet("transport") {
		transport = cmd.String("transport")
	}
	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	c := appCtx.Container
	srv := mcpserver.NewServer(
		c.Pipeline,
		c.Retriever,
		c.FoodLogs,
		mcpserver.WithLogger(appCtx.Logger()),
		mcpserver.WithHealthChecker(c.Database().Pool),
		mcpserver.WithMetricsHandler(cfg.Server.MetricsPath, c.Metrics.Handler()),
	)

	switch transport {
	case "stdio":
		return srv.ServeStdio()
	case "http":
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unknown transport: %q (stdio or http)", transport)
	}
}
