package cli

import (
	stdcontext "context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	httpapi "github.com/Paintersrp/kr/internal/api/http"
	"github.com/Paintersrp/kr/internal/config"
	"github.com/Paintersrp/kr/internal/engine"
	"github.com/Paintersrp/kr/internal/logmux"
	"github.com/Paintersrp/kr/internal/metrics"
)

const eventBuffer = 64

// supervise runs the configured command to a terminal state. Reaching the
// restart limit is a reported stop, not an error, so it maps to exit code 0;
// spawn and wait failures are returned and exit non-zero.
func (c *context) supervise(cmd *cobra.Command, run config.Run) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	runID := uuid.NewString()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	tracker := newStatusTracker(run, runID)
	sinks := []logmux.Sink{
		newConsoleReporter(out, errOut),
		tracker,
		newSystemdNotifier(c.notify),
	}

	if run.LogFile != nil {
		fileSink, err := logmux.NewFileSink(*run.LogFile, runID)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() {
			if err := fileSink.Close(); err != nil {
				fmt.Fprintf(errOut, "error: close log file: %v\n", err)
			}
		}()
		sinks = append(sinks, fileSink)
	}

	if run.MetricsAddr != "" {
		server, err := httpapi.NewServer(httpapi.Config{
			Addr:     run.MetricsAddr,
			Status:   tracker,
			Gatherer: metrics.Registry(),
		})
		if err != nil {
			return err
		}
		serverCtx, cancel := stdcontext.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := server.Run(serverCtx); err != nil {
				fmt.Fprintf(errOut, "error: metrics server: %v\n", err)
			}
		}()
	}

	mux := logmux.New(eventBuffer, sinks...)
	sup := engine.NewSupervisor(run.EngineConfig(runID), c.runtime, mux.Input())
	_, err := sup.Run(ctx)
	mux.Close()
	return err
}
