package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescrv/brief-measure/internal/shared/models"
)

func newKeyCmd(serverURL *string) *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "API key commands"}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Issue a new API key and store it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Post(*serverURL+"/api/v1/keys", "application/json", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("key issuance failed: %s", resp.Status)
			}
			var result models.APIKeyResponse
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return err
			}
			if _, err := models.ParseAPIKey(result.APIKey); err != nil {
				return fmt.Errorf("server returned a malformed key")
			}
			if err := saveKey(result.APIKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key stored in %s\n", keyPath())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	})
	return cmd
}

func keyPath() string {
	home, _ := os.UserHomeDir()
	return home + string(os.PathSeparator) + ".brief_measure_key"
}

func saveKey(key string) error {
	return os.WriteFile(keyPath(), []byte(key), 0600)
}

// loadKey resolves the API key: the BRIEF_MEASURE_API_KEY environment
// variable wins, then the key file written by `key new`.
func loadKey() (string, error) {
	if v, ok := os.LookupEnv("BRIEF_MEASURE_API_KEY"); ok && v != "" {
		return strings.TrimSpace(v), nil
	}
	b, err := os.ReadFile(keyPath())
	if err != nil {
		return "", fmt.Errorf("no API key found, run `briefmeasure key new` first")
	}
	return strings.TrimSpace(string(b)), nil
}
