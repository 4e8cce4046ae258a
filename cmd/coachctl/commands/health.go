package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ashureev/goalcoach/internal/healthcheck"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newHealthCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running server's gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return probe(ctx, addr, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC health address of the server")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")
	return cmd
}

func probe(ctx context.Context, addr string, out io.Writer) error {
	status, err := healthcheck.Probe(ctx, addr, healthcheck.ServiceName)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", addr, status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", addr, status)
	}
	return nil
}
