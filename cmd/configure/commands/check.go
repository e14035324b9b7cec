package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/quickfix/quickfix-api/internal/platform"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var city string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the configured backing services",
		Long:  "Ping the document store, Redis and RabbitMQ, and geocode a sample city.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStore()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()
			out := cmd.OutOrStdout()
			var failed []string

			fmt.Fprintf(out, "Document store (%s): ", cfg.DocstoreDriver)
			store, err := platform.OpenStore(ctx, cfg, zap.NewNop())
			if err == nil {
				err = store.Ping(ctx)
				_ = store.Close(context.Background())
			}
			failed = report(out, "docstore", err, failed)

			if cfg.RedisURL != "" {
				fmt.Fprint(out, "Redis: ")
				client, err := platform.OpenRedis(ctx, cfg.RedisURL)
				if client != nil {
					_ = client.Close()
				}
				failed = report(out, "redis", err, failed)
			}

			if cfg.RabbitMQURL != "" {
				fmt.Fprint(out, "RabbitMQ: ")
				q, err := platform.ConnectQueue(ctx, cfg.RabbitMQURL, 1, zap.NewNop())
				if err == nil {
					err = q.HealthCheck(ctx)
					_ = q.Close()
				}
				failed = report(out, "rabbitmq", err, failed)
			}

			fmt.Fprintf(out, "Geocoder (%s): ", cfg.GeocoderURL)
			client := geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, zap.NewNop())
			var geoErr error
			if point := client.Forward(ctx, city); point == nil {
				geoErr = fmt.Errorf("no coordinates for %q", city)
			}
			failed = report(out, "geocoder", geoErr, failed)

			if len(failed) > 0 {
				return fmt.Errorf("unreachable: %v", failed)
			}
			fmt.Fprintln(out, "\n✓ All services reachable")
			return nil
		},
	}

	cmd.Flags().StringVar(&city, "city", "Pune", "City to geocode")

	return cmd
}

func report(out io.Writer, name string, err error, failed []string) []string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.New("timed out")
		}
		fmt.Fprintf(out, "✗ %v\n", err)
		return append(failed, name)
	}
	fmt.Fprintln(out, "✓")
	return failed
}
