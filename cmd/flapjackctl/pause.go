package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause writes for --tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantFlag == "" {
				return fmt.Errorf("--tenant is required")
			}
			data, err := doRequest("POST", apiFlag+"/internal/pause/"+tenantFlag, nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume writes for --tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantFlag == "" {
				return fmt.Errorf("--tenant is required")
			}
			data, err := doRequest("POST", apiFlag+"/internal/resume/"+tenantFlag, nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this node's replication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doRequest("GET", apiFlag+"/internal/status", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}
