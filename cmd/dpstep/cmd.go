package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/itohio/dpstep/pkg/config"
	"github.com/itohio/dpstep/pkg/telemetry/rs485"
)

const defaultConfigPath = "dpstep.yaml"

var RootCmd = &cobra.Command{
	Use:           "dpstep",
	Short:         "differential pressure stepper controller",
	Long:          "dpstep reads two HX710B pressure sensors and drives a stepper motor proportionally to their difference.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
	},
}

var RunCmd = &cobra.Command{
	Use:        "run",
	SuggestFor: []string{"ru", "start"},
	Short:      "calibrate and run the control loop",
	Long: `run calibrates both sensor channels at the current (zero) pressure and then
runs the control loop until interrupted.
With --sim the loop drives a simulated rig instead of GPIO lines.`,
	Example: `  dpstep run --config=/etc/dpstep.yaml
  dpstep run --sim --debug`,
	RunE: runCmdRunE,
}

var CalibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "capture and print the channel offsets",
	Long:  "calibrate primes both channel filters, prints the resulting zero offsets and exits without moving the motor.",
	RunE:  calibrateCmdRunE,
}

var InitCmd = &cobra.Command{
	Use:        "init",
	SuggestFor: []string{"ini", "in"},
	Short:      "init creates a configuration template",
	Long: `init creates a configuration template.
If --print flag is present, the configuration will be printed to stdout.
Otherwise it is written to the path given by --output.`,
	Example: `  dpstep init --print
  dpstep init -o /etc/dpstep.yaml -y`,
	RunE: initCmdRunE,
}

var PortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list serial ports usable for telemetry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := rs485.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().String("config", defaultConfigPath, "configuration file path")
	RootCmd.PersistentFlags().Bool("debug", false, "toggle debug logging")

	for _, cmd := range []*cobra.Command{RunCmd, CalibrateCmd} {
		cmd.Flags().Bool("sim", false, "use the simulated rig instead of GPIO")
		cmd.Flags().StringP("port", "p", "", "telemetry serial port override (enables serial telemetry)")
	}

	InitCmd.Flags().Bool("print", false, "print config to stdout")
	InitCmd.Flags().BoolP("yes", "y", false, "overwrite an existing file")
	InitCmd.Flags().StringP("output", "o", defaultConfigPath, "output path")

	RootCmd.AddCommand(RunCmd, CalibrateCmd, InitCmd, PortsCmd)
}

// loadConfig reads --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Telemetry.Serial.Port = port
		cfg.Telemetry.Serial.Enabled = true
	}

	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmdRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	simulate, _ := cmd.Flags().GetBool("sim")

	r, err := buildRig(cfg, simulate, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signalContext()
	defer cancel()

	log.WithField("sim", simulate).Info("starting control loop")
	err = r.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("control loop stopped")
		return nil
	}
	return err
}

func calibrateCmdRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	simulate, _ := cmd.Flags().GetBool("sim")

	r, err := buildRig(cfg, simulate, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := r.loop.Calibrate(ctx); err != nil {
		return err
	}

	offsets := r.loop.Offsets()
	fmt.Fprintf(cmd.OutOrStdout(), "offset A: %d\noffset B: %d\n", offsets[0], offsets[1])
	return nil
}

func initCmdRunE(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwrite, _ := cmd.Flags().GetBool("yes")

	cfg := config.Default()

	if printFlag {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	}

	if _, err := os.Stat(outputPath); err == nil && !overwrite {
		return fmt.Errorf("%s already exists, use --yes to overwrite", outputPath)
	}
	if err := cfg.Save(outputPath); err != nil {
		return err
	}
	log.Infof("configuration written to %s", outputPath)
	return nil
}
