package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/data"
	"github.com/cascadia-health/epiforecast/internal/model"
)

var importJurisdiction string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Ingest snapshot data for a jurisdiction",
	Long:  "Loads census tracts, facility rosters, tract demographics, and weekly surveillance timeseries into the canonical snapshot.",
}

var importTractsCmd = &cobra.Command{
	Use:   "tracts",
	Short: "Import census tract boundaries from a TIGER/Line shapefile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		shpPath, _ := cmd.Flags().GetString("shapefile")
		remote, _ := cmd.Flags().GetString("remote")
		if shpPath == "" && remote == "" {
			return eris.New("either --shapefile or --remote is required")
		}

		if remote != "" {
			if cfg.Data.FTPHost == "" {
				return eris.New("data.ftp_host must be configured for --remote")
			}
			if err := os.MkdirAll(cfg.Data.TempDir, 0o755); err != nil {
				return eris.Wrap(err, "create temp dir")
			}
			archive := filepath.Join(cfg.Data.TempDir, filepath.Base(remote))
			fetcher := data.NewFTPFetcher(data.FTPOptions{
				Host:     cfg.Data.FTPHost,
				User:     cfg.Data.FTPUser,
				Password: cfg.Data.FTPPassword,
			})
			n, err := fetcher.DownloadToFile(ctx, remote, archive)
			if err != nil {
				return err
			}
			zap.L().Info("downloaded tract archive", zap.String("remote", remote), zap.Int64("bytes", n))
			shpPath = archive
		}

		if strings.EqualFold(filepath.Ext(shpPath), ".zip") {
			extracted, err := data.ExtractShapefile(shpPath, cfg.Data.TempDir)
			if err != nil {
				return err
			}
			shpPath = extracted
		}

		tracts, err := data.ImportTracts(shpPath, importJurisdiction)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.PutTracts(ctx, importJurisdiction, tracts)
		if err != nil {
			return eris.Wrap(err, "store tracts")
		}
		zap.L().Info("imported tracts", zap.String("jurisdiction", importJurisdiction), zap.Int64("rows", n))
		return nil
	},
}

var importFacilitiesCmd = &cobra.Command{
	Use:   "facilities",
	Short: "Import the facility roster from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		facilities, err := data.ImportFacilities(file, importJurisdiction)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.PutFacilities(ctx, importJurisdiction, facilities)
		if err != nil {
			return eris.Wrap(err, "store facilities")
		}
		zap.L().Info("imported facilities", zap.String("jurisdiction", importJurisdiction), zap.Int64("rows", n))
		return nil
	},
}

var importDemographicsCmd = &cobra.Command{
	Use:   "demographics",
	Short: "Import tract age distributions from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		demographics, err := data.ImportDemographics(file)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.PutDemographics(ctx, importJurisdiction, demographics)
		if err != nil {
			return eris.Wrap(err, "store demographics")
		}
		zap.L().Info("imported demographics", zap.String("jurisdiction", importJurisdiction), zap.Int64("rows", n))
		return nil
	},
}

var importTimeseriesCmd = &cobra.Command{
	Use:   "timeseries",
	Short: "Import weekly surveillance observations from XLSX or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		disease, _ := cmd.Flags().GetString("disease")

		observations, err := importObservations(file)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.PutTimeseries(ctx, importJurisdiction, disease, observations)
		if err != nil {
			return eris.Wrap(err, "store timeseries")
		}
		zap.L().Info("imported timeseries",
			zap.String("jurisdiction", importJurisdiction),
			zap.String("disease", disease),
			zap.Int64("rows", n),
		)
		return nil
	},
}

func importObservations(file string) ([]model.WeeklyObservation, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx":
		return data.ImportTimeseriesXLSX(file)
	case ".csv":
		f, err := os.Open(file)
		if err != nil {
			return nil, eris.Wrap(err, "open timeseries file")
		}
		defer f.Close()
		return data.ImportTimeseriesCSV(f)
	default:
		return nil, eris.Errorf("unsupported timeseries format %q (want .xlsx or .csv)", filepath.Ext(file))
	}
}

func init() {
	importCmd.PersistentFlags().StringVar(&importJurisdiction, "jurisdiction", "", "jurisdiction identifier (required)")
	_ = importCmd.MarkPersistentFlagRequired("jurisdiction")

	importTractsCmd.Flags().String("shapefile", "", "local shapefile or zip archive")
	importTractsCmd.Flags().String("remote", "", "remote FTP path of a TIGER/Line zip")
	importFacilitiesCmd.Flags().String("file", "", "facility roster JSON file (required)")
	_ = importFacilitiesCmd.MarkFlagRequired("file")
	importDemographicsCmd.Flags().String("file", "", "demographics JSON file (required)")
	_ = importDemographicsCmd.MarkFlagRequired("file")
	importTimeseriesCmd.Flags().String("file", "", "timeseries XLSX or CSV file (required)")
	importTimeseriesCmd.Flags().String("disease", "", "disease key (required)")
	_ = importTimeseriesCmd.MarkFlagRequired("file")
	_ = importTimeseriesCmd.MarkFlagRequired("disease")

	importCmd.AddCommand(importTractsCmd, importFacilitiesCmd, importDemographicsCmd, importTimeseriesCmd)
	rootCmd.AddCommand(importCmd)
}
