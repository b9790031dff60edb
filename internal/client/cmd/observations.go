package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rescrv/brief-measure/internal/shared/models"
)

func newSubmitCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <observation>",
		Short: "Upload one observation (10 characters, each 1-4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate locally before spending a slot in the server's
			// admission window.
			if _, err := models.ParseObservation(args[0]); err != nil {
				return fmt.Errorf("observation must be exactly %d characters, each one of 1-4", models.ObservationLength)
			}
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			body := models.Observation{UUIDv7: id.String(), Observation: args[0]}
			stored, err := postObservation(*serverURL, body)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stored)
		},
	}
}

func newListCmd(serverURL *string) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey()
			if err != nil {
				return err
			}
			url := *serverURL + "/api/v1/observations"
			if cmd.Flags().Changed("limit") {
				url += "?limit=" + strconv.FormatInt(limit, 10)
			}
			req, _ := http.NewRequest("GET", url, nil)
			req.Header.Set("Authorization", "Bearer "+key)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("list failed: %s", resp.Status)
			}
			var items []models.Observation
			if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of observations to fetch")
	return cmd
}

func newForgetCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "forget-me-now",
		Short: "Delete the API key and every observation it owns",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey()
			if err != nil {
				return err
			}
			req, _ := http.NewRequest("POST", *serverURL+"/api/v1/forget-me-now", nil)
			req.Header.Set("Authorization", "Bearer "+key)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("forget failed: %s", resp.Status)
			}
			_ = os.Remove(keyPath())
			fmt.Fprintln(cmd.OutOrStdout(), "Forgotten")
			return nil
		},
	}
}

func postObservation(serverURL string, body models.Observation) (models.Observation, error) {
	key, err := loadKey()
	if err != nil {
		return models.Observation{}, err
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", serverURL+"/api/v1/observations", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.Observation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Observation{}, fmt.Errorf("observation limit reached, try again later")
	}
	if resp.StatusCode != http.StatusCreated {
		return models.Observation{}, fmt.Errorf("submit failed: %s", resp.Status)
	}
	var stored models.Observation
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return models.Observation{}, err
	}
	return stored, nil
}
