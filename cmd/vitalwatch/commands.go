package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"vitalwatch/internal/config"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/medical"
	"vitalwatch/internal/models"
	"vitalwatch/internal/processor"
)

// newRootCmd wires the cobra root command.
func newRootCmd() *cobra.Command {
	var (
		configPath string
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:   "vitalwatch",
		Short: "Vital sign checks against patient baselines",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Init(cfg.Log.Level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")

	current := func() *config.Config { return cfg }
	root.AddCommand(newServeCommand(current))
	root.AddCommand(newCheckCommand(current))
	return root
}

func newServeCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP check API and the readings consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return processor.New(cfg()).Run(cmd.Context())
		},
	}
}

func newCheckCommand(cfg func() *config.Config) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single check against the configured store and sinks",
	}

	checkCmd.AddCommand(
		&cobra.Command{
			Use:   "temperature <patient-id> <celsius>",
			Short: "Check one temperature reading",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := models.ParseTemperature(args[1])
				if err != nil {
					return err
				}
				return runCheck(cmd, cfg(), models.NewTemperatureReading(args[0], t))
			},
		},
		&cobra.Command{
			Use:   "blood-pressure <patient-id> <systolic/diastolic>",
			Short: "Check one blood pressure reading",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				bp, err := models.ParseBloodPressure(args[1])
				if err != nil {
					return err
				}
				return runCheck(cmd, cfg(), models.NewBloodPressureReading(args[0], bp))
			},
		},
	)

	return checkCmd
}

// countingSender counts alerts passed through to next
type countingSender struct {
	next medical.AlertSender
	sent atomic.Int32
}

func (c *countingSender) Send(ctx context.Context, message string) error {
	c.sent.Add(1)
	return c.next.Send(ctx, message)
}

func runCheck(cmd *cobra.Command, cfg *config.Config, reading *models.Reading) error {
	reading.Normalize()

	components, err := processor.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	sender := &countingSender{next: components.Sender}
	if err := medical.NewChecker(components.Store, sender).Check(cmd.Context(), reading); err != nil {
		return err
	}

	if sender.sent.Load() == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s for %s is normal\n", reading.Kind, reading.PatientID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s for %s is abnormal, alert sent\n", reading.Kind, reading.PatientID)
	return nil
}
