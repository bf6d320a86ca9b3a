package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ride-share/internal/config"
	databaseservice "ride-share/internal/database-service"
	dispatchservice "ride-share/internal/dispatch-service"
	driverservice "ride-share/internal/driver-service"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
	"ride-share/internal/simulator"

	"github.com/spf13/cobra"
)

type executeFunc func(ctx context.Context, mylog mylogger.Logger, cfg *config.Config) error

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "ride-share",
	Short:         "Ride-share dispatch system",
	Long:          `ride-share runs one of the system's services: the passenger dispatch coordinator, the driver registry, or a replicated database node.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.properties", "properties file; environment variables override it")

	rootCmd.AddCommand(
		serviceCommand("dispatch", "Accept passenger connections and match rides to drivers", dispatchservice.Execute),
		serviceCommand("driver", "Track connected drivers and push ride assignments", driverservice.Execute),
		serviceCommand("database", "Serve the ride database and replicate it to peers", databaseservice.Execute),
		simulateCommand(),
	)
}

func serviceCommand(name, short string, run executeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			mylog := mylogger.New(name+"-service", cfg.Log.Level)
			mylog.Action(name+"_service_started").Info("Service starting up", "node_id", cfg.NodeID)
			return run(cmd.Context(), mylog, cfg)
		},
	}
}

func simulateCommand() *cobra.Command {
	var (
		opts   simulator.Options
		enroll bool
	)
	cmd := &cobra.Command{
		Use:   "simulate-driver",
		Short: "Connect a simulated driver over websocket and accept every ride",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			mylog := mylogger.New("driver-simulator", cfg.Log.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, err := simulator.Dial(ctx, cfg.DriverWSURL(), cfg.Srv.ReadTimeout, cfg.Srv.WriteTimeout)
			if err != nil {
				return err
			}
			defer conn.Close()

			d := simulator.NewDriver(mylog, conn, opts)
			if enroll {
				if err := d.Enroll(ctx, protocol.NewClient(cfg.Srv.RequestTimeout), cfg.DBServiceAddr()); err != nil {
					mylog.Action("enroll_driver").Warn("driver not enrolled", "reason", err.Error())
				}
			}
			mylog.Action("driver_simulator_started").Info("Simulated driver connected", "driver", d.Username(), "url", cfg.DriverWSURL())
			return d.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Username, "username", "", "driver username (random when empty)")
	f.Float64Var(&opts.Latitude, "lat", 9.0, "starting latitude")
	f.Float64Var(&opts.Longitude, "lon", 38.7, "starting longitude")
	f.DurationVar(&opts.Interval, "interval", 2*time.Second, "time between location updates")
	f.Float64Var(&opts.SpeedKmh, "speed", 40, "driving speed in km/h")
	f.IntVar(&opts.TripSteps, "trip-steps", 5, "location updates between pickup and drop-off")
	f.BoolVar(&enroll, "enroll", true, "create the driver row in the database service first")
	return cmd
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
