package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/enregistreuse/caisse-mcp/pkg/broker"
	"github.com/enregistreuse/caisse-mcp/pkg/broker/store"
	"github.com/enregistreuse/caisse-mcp/pkg/guard"
	"github.com/enregistreuse/caisse-mcp/pkg/i18n"
	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/enregistreuse/caisse-mcp/pkg/tools"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveStdio      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OAuth2 broker and the MCP tool server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to the YAML config file")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve MCP over stdio instead of HTTP")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	godotenv.Load()

	config, err := loadConfig(serveConfigPath)
	if err != nil {
		return err
	}

	up := upstream.NewClient(upstream.WithBaseURL(config.UpstreamBaseURL))

	sessions := session.NewManager()
	mcpServer := mcpserver.NewMCPServer(
		i18n.T("server.name"),
		version,
		mcpserver.WithToolCapabilities(false),
	)
	registry := guard.NewRegistry(mcpServer, sessions)
	tools.RegisterAll(registry, up)

	if serveStdio {
		slog.Info("Starting MCP server on stdio", "lang", i18n.Lang())
		stdio := mcpserver.NewStdioServer(mcpServer)
		return stdio.Listen(context.Background(), os.Stdin, os.Stdout)
	}

	brokerOpts := []broker.Option{
		broker.WithIssuer(config.Issuer),
		broker.WithCredentialVerifier(up),
	}

	if config.SigningKeyFile != "" {
		slog.Info("Loading signing key", "path", config.SigningKeyFile)
		brokerOpts = append(brokerOpts, broker.WithSigningKeyFromPEMFile(config.SigningKeyFile))
	} else {
		brokerOpts = append(brokerOpts, broker.WithEphemeralSigningKey())
	}

	if config.RedisURL != "" {
		redisStore, err := store.NewRedisStore(config.RedisURL, config.RedisKeyPrefix)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		slog.Info("Using redis store")
		brokerOpts = append(brokerOpts,
			broker.WithClientStore(redisStore),
			broker.WithCodeStore(redisStore),
		)
	} else {
		memory := store.NewMemoryStore()
		defer memory.Close()
		brokerOpts = append(brokerOpts,
			broker.WithClientStore(memory),
			broker.WithCodeStore(memory),
		)
	}

	if config.DevClient != nil {
		brokerOpts = append(brokerOpts, broker.WithDevClient(config.DevClient.ClientID, config.DevClient.RedirectURIs...))
	}

	brokerServer, err := broker.NewServer(brokerOpts...)
	if err != nil {
		return err
	}

	validator := session.NewBearerValidator(
		brokerServer.Keys().PublicSet(),
		brokerServer.Issuer(),
		brokerServer.Audience(),
	)

	streamable := mcpserver.NewStreamableHTTPServer(mcpServer,
		mcpserver.WithHTTPContextFunc(httpAuthContext(validator)),
	)

	e := echo.New()
	e.HideBanner = true
	brokerServer.MountRoutes(e)
	e.Any("/mcp", echo.WrapHandler(streamable))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "lang": i18n.Lang()})
	})

	slog.Info("Starting broker and MCP server", "address", config.Address, "issuer", config.Issuer)
	log.Fatal(e.Start(config.Address))
	return nil
}

// httpAuthContext resolves the transport-level authentication of an
// HTTP request before tool dispatch: a verified broker token first,
// then the dev header pair. Each MCP session keeps its own ambient
// session entry.
func httpAuthContext(validator *session.BearerValidator) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		connectionID := r.Header.Get("Mcp-Session-Id")
		if connectionID == "" {
			connectionID = ksuid.New().String()
		}
		ctx = session.WithConnectionID(ctx, connectionID)

		if authorization := r.Header.Get("Authorization"); authorization != "" {
			state, err := validator.Validate(authorization)
			if err != nil {
				slog.Debug("Rejected bearer token", "error", err)
			} else {
				return session.WithAuthState(ctx, state)
			}
		}

		apiKey := firstHeader(r, "X-Api-Key", "X-ApiKey")
		shopID := firstHeader(r, "X-Shop-Id", "X-ShopId")
		if apiKey != "" && shopID != "" {
			return session.WithAuthState(ctx, &session.AuthState{
				Authenticated: true,
				ShopID:        shopID,
				APIKey:        apiKey,
				Scopes:        []string{session.WildcardScope},
			})
		}

		return ctx
	}
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if value := r.Header.Get(name); value != "" {
			return value
		}
	}
	return ""
}
