package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/dbctx/dbctx"
)

func runServe() error {
	ctx := context.Background()

	serverConfig, err := dbctx.LoadServerConfig(configPath())
	if err != nil {
		return err
	}

	if serverConfig.Server.Port <= 0 {
		panic("dbctx: server.port must be > 0")
	}

	connString := os.Getenv("DBCTX_CONNSTRING")
	if connString == "" {
		username := promptInput("Username: ")
		password := promptPassword("Password: ")
		connString = buildConnString(serverConfig.Connection, username, password)
	}

	logger := setupLogger(serverConfig.Logging)

	engine, err := dbctx.New(connString, serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close(ctx)

	logger.Info().Msg("testing database connection")
	if err := engine.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("dbctx", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	dbctx.RegisterMCPTools(mcpServer, engine)

	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			panic("dbctx: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Start() does not register the handler when a custom *http.Server is
	// provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting dbctx server")
	return streamableServer.Start(addr)
}

func configPath() string {
	if path := os.Getenv("DBCTX_CONFIG_PATH"); path != "" {
		return path
	}
	return ".dbctx/config.json"
}

func buildConnString(conn dbctx.ConnectionConfig, username, password string) string {
	parts := []string{}
	if conn.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", conn.Host))
	}
	if conn.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", conn.Port))
	}
	if conn.DBName != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", conn.DBName))
	}
	if username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", username))
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", password))
	}
	if conn.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", conn.SSLMode))
	}
	return strings.Join(parts, " ")
}

func setupLogger(config dbctx.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
