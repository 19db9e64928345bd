package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/loopwork-ai/ignition-mcp/gateway"
	"github.com/loopwork-ai/ignition-mcp/internal"
	"github.com/loopwork-ai/ignition-mcp/internal/config"
	"github.com/loopwork-ai/ignition-mcp/mcp"
	"github.com/loopwork-ai/ignition-mcp/tools"
)

var rootCmd = &cobra.Command{
	Use:   "ignition-mcp [spec-path-or-url]",
	Short: "An MCP server for an Ignition Gateway",
	Long: `ignition-mcp exposes an Ignition Gateway's REST API as MCP tools over a
stdio transport. It reads JSON-RPC requests from stdin, makes the
corresponding authenticated gateway calls, and writes JSON-RPC responses
to stdout.

The optional spec-path-or-url argument can be:
- A local file path
- An HTTP(S) URL
- "-" to read from stdin

When omitted, the OpenAPI document is fetched from the gateway itself.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		if !verbose {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}

		g.Go(func() error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			applyFlagOverrides(cfg)

			if err := resolveSecrets(ctx, cfg); err != nil {
				return err
			}

			retryClient := retryablehttp.NewClient()
			retryClient.RetryMax = retries
			retryClient.RetryWaitMin = 1 * time.Second
			retryClient.RetryWaitMax = 30 * time.Second
			retryClient.HTTPClient.Timeout = cfg.Timeout
			retryClient.Logger = logger

			if rps > 0 {
				retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
					// Ensure we wait at least 1/rps between requests
					minWait := time.Second / time.Duration(rps)
					if min < minWait {
						min = minWait
					}
					return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
				}
			}

			client := gateway.NewClient(cfg.GatewayURL,
				gateway.WithHTTPClient(retryClient.StandardClient()),
				gateway.WithAPIKey(cfg.APIKey),
				gateway.WithBasicAuth(cfg.Username, cfg.Password),
				gateway.WithLogger(logger),
			)

			specData, rpcInput, err := loadSpec(ctx, args, client, logger)
			if err != nil {
				return err
			}

			generator := tools.NewGenerator(specData, tools.WithGeneratorLogger(logger))

			dispatcherOpts := []tools.DispatcherOption{
				tools.WithGenerator(generator),
				tools.WithGatewayClient(client),
				tools.WithLogger(logger),
				tools.WithTagEndpoint(cfg.TagEndpoint.Path, cfg.TagEndpoint.DefaultMethod),
			}
			if cfg.RulesEngineURL != "" {
				rules := gateway.NewClient(cfg.RulesEngineURL,
					gateway.WithHTTPClient(retryClient.StandardClient()),
					gateway.WithLogger(logger),
				)
				dispatcherOpts = append(dispatcherOpts, tools.WithRulesEngine(rules))
			}

			dispatcher, err := tools.NewDispatcher(dispatcherOpts...)
			if err != nil {
				return fmt.Errorf("error creating dispatcher: %w", err)
			}

			server, err := mcp.NewServer(
				mcp.WithDispatcher(dispatcher),
				mcp.WithServerInfo("ignition-mcp", version),
				mcp.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("error creating server: %w", err)
			}

			transport := mcp.NewStdioTransport(server, rpcInput, os.Stdout, os.Stderr)
			return transport.Run(ctx)
		})

		return g.Wait()
	},
}

// loadSpec resolves the OpenAPI document from the optional CLI argument, or
// from the gateway's introspection endpoint when no argument is given. It
// also returns the reader to use for RPC input, which differs from stdin
// only when the spec itself is piped in.
func loadSpec(ctx context.Context, args []string, client *gateway.Client, logger *slog.Logger) ([]byte, io.Reader, error) {
	var rpcInput io.Reader = os.Stdin

	if len(args) == 0 {
		logger.Info("fetching spec from gateway", "url", client.BaseURL())
		return client.FetchSpec(ctx), rpcInput, nil
	}

	source := args[0]
	switch {
	case source == "-":
		logger.Info("reading spec from stdin")

		// When reading the spec from stdin, RPC input has to come from
		// /dev/tty because stdin isn't a TTY when reading from a pipe
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return nil, nil, fmt.Errorf("error opening /dev/tty: %w", err)
		}
		rpcInput = tty

		specData, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading OpenAPI spec from stdin: %w", err)
		}
		return specData, rpcInput, nil

	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		logger.Info("reading spec from URL", "url", source)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating request: %w", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("error downloading spec: %w", err)
		}
		defer resp.Body.Close()

		specData, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading spec from %s: %w", source, err)
		}
		return specData, rpcInput, nil

	default:
		logger.Info("reading spec from file", "file", source)

		cleanPath := filepath.Clean(source)

		info, err := os.Stat(cleanPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil, fmt.Errorf("spec file does not exist: %s", cleanPath)
			}
			return nil, nil, fmt.Errorf("error accessing spec file %s: %w", cleanPath, err)
		}
		if info.IsDir() {
			return nil, nil, fmt.Errorf("specified path is a directory, not a file: %s", cleanPath)
		}
		if info.Size() > 100*1024*1024 { // 100MB limit
			return nil, nil, fmt.Errorf("spec file too large (max 100MB): %s", cleanPath)
		}

		specData, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading spec file %s: %w", cleanPath, err)
		}
		return specData, rpcInput, nil
	}
}

func applyFlagOverrides(cfg *config.Config) {
	if gatewayURL != "" {
		cfg.GatewayURL = strings.TrimSuffix(gatewayURL, "/")
	}
	if username != "" {
		cfg.Username = username
	}
	if password != "" {
		cfg.Password = password
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if rulesEngineURL != "" {
		cfg.RulesEngineURL = strings.TrimSuffix(rulesEngineURL, "/")
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
}

func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	resolved, _, err := internal.ResolveSecretReference(ctx, cfg.Password)
	if err != nil {
		return fmt.Errorf("error resolving password: %w", err)
	}
	cfg.Password = resolved

	resolved, _, err = internal.ResolveSecretReference(ctx, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("error resolving API key: %w", err)
	}
	cfg.APIKey = resolved

	return nil
}

var (
	configPath     string
	gatewayURL     string
	username       string
	password       string
	apiKey         string
	rulesEngineURL string
	verbose        bool
	retries        int
	timeout        time.Duration
	rps            int

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "Ignition Gateway base URL")
	rootCmd.Flags().StringVar(&username, "username", "", "Gateway username for HTTP Basic auth")
	rootCmd.Flags().StringVar(&password, "password", "", "Gateway password (supports op:// and env:// references)")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "Gateway API token (supports op:// and env:// references)")
	rootCmd.Flags().StringVar(&rulesEngineURL, "rules-engine-url", "", "Script validation rules engine base URL")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging to stderr")
	rootCmd.Flags().IntVar(&retries, "retries", 3, "Maximum number of retries for failed requests")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "HTTP request timeout (overrides config)")
	rootCmd.Flags().IntVarP(&rps, "rps", "r", 0, "Maximum requests per second (0 for no limit)")

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
