package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExperimentCreateCmd() *cobra.Command {
	var name, targetIndex, primaryMetric string
	var trafficSplit float64
	var minimumDays int

	cmd := &cobra.Command{
		Use:   "experiment create",
		Short: "Create a draft experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"name":          name,
				"targetIndex":   targetIndex,
				"trafficSplit":  trafficSplit,
				"primaryMetric": primaryMetric,
				"minimumDays":   minimumDays,
				"controlArm":    map[string]interface{}{"id": "control"},
				"variantArm":    map[string]interface{}{"id": "variant"},
			}
			data, err := doRequest("POST", apiFlag+"/2/abtests", payload)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "experiment name (required)")
	cmd.Flags().StringVar(&targetIndex, "index", "", "target index (required)")
	cmd.Flags().Float64Var(&trafficSplit, "split", 0.5, "fraction of traffic routed to the variant arm")
	cmd.Flags().StringVar(&primaryMetric, "metric", "ctr", "primary metric: ctr|conversion_rate|revenue_per_search|zero_result_rate|abandonment_rate")
	cmd.Flags().IntVar(&minimumDays, "minimum-days", 7, "minimum days before a readout is trusted")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func newExperimentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "experiment list",
		Short: "List experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := apiFlag + "/2/abtests"
			if status != "" {
				url += "?status=" + status
			}
			data, err := doRequest("GET", url, nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: draft|running|stopped|concluded")
	return cmd
}

func newExperimentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiment get [id]",
		Short: "Get an experiment by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("GET", apiFlag+"/2/abtests/"+args[0], nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newExperimentStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiment start [id]",
		Short: "Start a draft experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("POST", apiFlag+"/2/abtests/"+args[0]+"/start", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newExperimentStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiment stop [id]",
		Short: "Stop a running experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("POST", apiFlag+"/2/abtests/"+args[0]+"/stop", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newExperimentConcludeCmd() *cobra.Command {
	var winner, notes string
	cmd := &cobra.Command{
		Use:   "experiment conclude [id]",
		Short: "Conclude a stopped experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if winner != "" && winner != "control" && winner != "variant" {
				return fmt.Errorf("--winner must be \"control\" or \"variant\"")
			}
			payload := map[string]interface{}{"winner": winner, "notes": notes}
			data, err := doRequest("POST", apiFlag+"/2/abtests/"+args[0]+"/conclude", payload)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&winner, "winner", "", "declared winner: control|variant")
	cmd.Flags().StringVar(&notes, "notes", "", "freeform conclusion notes")
	return cmd
}

func newExperimentResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiment results [id]",
		Short: "Fetch an experiment's statistical readout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("GET", apiFlag+"/2/abtests/"+args[0]+"/results", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}
