package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/calibrate"
	"github.com/cascadia-health/epiforecast/internal/model"
)

var (
	calJurisdiction string
	calDisease      string
	calWindow       int
	calParams       []string
	calReps         int
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit disease parameters against observed weekly data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		calCfg := model.CalibrationConfig{
			JurisdictionID:         calJurisdiction,
			Disease:                calDisease,
			CalibrationWindowWeeks: calWindow,
			ParamsToFit:            calParams,
			StochasticReps:         calReps,
		}
		if err := calCfg.Validate(); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cal, err := st.CreateCalibration(ctx, calCfg)
		if err != nil {
			return eris.Wrap(err, "create calibration")
		}

		svc := calibrate.NewService(st, cfg.Simulation.ProfilesDir)
		if err := svc.ExecuteCalibration(ctx, cal); err != nil {
			return eris.Wrap(err, "execute calibration")
		}

		completed, err := st.GetCalibration(ctx, cal.ID)
		if err != nil {
			return eris.Wrap(err, "load completed calibration")
		}

		zap.L().Info("calibration complete",
			zap.String("calibration_id", completed.ID),
			zap.String("status", string(completed.Status)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(completed)
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calJurisdiction, "jurisdiction", "", "jurisdiction identifier (required)")
	calibrateCmd.Flags().StringVar(&calDisease, "disease", "", "disease key (required)")
	calibrateCmd.Flags().IntVar(&calWindow, "window", 12, "calibration window in weeks")
	calibrateCmd.Flags().StringSliceVar(&calParams, "params", []string{"transmissibility_base", "detection_multiplier"}, "parameters to fit")
	calibrateCmd.Flags().IntVar(&calReps, "reps", 10, "stochastic repetitions per objective evaluation")
	_ = calibrateCmd.MarkFlagRequired("jurisdiction")
	_ = calibrateCmd.MarkFlagRequired("disease")
	rootCmd.AddCommand(calibrateCmd)
}
