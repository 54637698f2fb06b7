package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/integral/internal/infrastructure/server"
)

func newLocalCmd(f *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local <start> <end> <multiplier>",
		Short: "Run the coordinator and all workers in this process",
		Example: `  integral local 0 1 1 --size 4
  integral local 0 10 8 --size 16 --threads 2 --report run.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := positional(args)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, err = runnerFor(cmd, f, cfg, logger).Local(cmd.Context(), p)
			return err
		},
	}
	addGroupFlags(cmd, f)
	addKernelFlags(cmd, f)
	addCoordinatorFlags(cmd, f)
	return cmd
}

func newCoordinatorCmd(f *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "coordinator <start> <end> <multiplier>",
		Short:   "Serve packets over gRPC as rank 0",
		Example: `  integral coordinator 0 1 4 --size 5 --listen :7070 --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := positional(args)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer logger.Sync()

			r := runnerFor(cmd, f, cfg, logger)
			logger.Info("Starting coordinator", zap.Stringer("run", r.RunID()), zap.String("listen", cfg.Transport.ListenAddr))
			_, err = r.Coordinator(cmd.Context(), p)
			return err
		},
	}
	addGroupFlags(cmd, f)
	addCoordinatorFlags(cmd, f)
	cmd.Flags().StringVar(&f.listenAddr, "listen", "", "gRPC listen address")
	return cmd
}

func newWorkerCmd(f *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "worker",
		Short:   "Join a coordinator over gRPC and compute packets",
		Example: `  integral worker --rank 2 --size 5 --coordinator coord:7070 --threads 4`,
		// Launchers that pass the same arguments to every rank are accepted
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer logger.Sync()

			_, err = runnerFor(cmd, f, cfg, logger).Worker(cmd.Context())
			return err
		},
	}
	addGroupFlags(cmd, f)
	addKernelFlags(cmd, f)
	addWorkerFlags(cmd, f)
	return cmd
}

func newRunCmd(f *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <start> <end> <multiplier>",
		Short: "Act as coordinator on rank 0 and as worker on every other rank",
		Long: `run starts the same command line on every node; RANK (or --rank) picks the
role. Rank 0 listens on LISTEN_ADDR, other ranks dial COORDINATOR_ADDR.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := positional(args)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runnerFor(cmd, f, cfg, logger).ByRank(cmd.Context(), p)
		},
	}
	addGroupFlags(cmd, f)
	addKernelFlags(cmd, f)
	addCoordinatorFlags(cmd, f)
	addWorkerFlags(cmd, f)
	cmd.Flags().StringVar(&f.listenAddr, "listen", "", "gRPC listen address (rank 0)")
	return cmd
}

func newStatusCmd(f *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Print the progress of a running coordinator",
		Example: `  integral status --addr localhost:9090`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := server.NewClient(f.statusAddr).Status(cmd.Context())
			if err != nil {
				return err
			}
			out, err := sonic.ConfigStd.MarshalIndent(p, "", "  ")
			if err != nil {
				return fmt.Errorf("encode status: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&f.statusAddr, "addr", "localhost:9090", "status server address")
	return cmd
}
