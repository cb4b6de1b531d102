package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the API access token",
	Long: `Show the access token for the HTTP API's mutating endpoints.

The token is generated each time 'contentmill serve' starts and
written next to the database.

Example:
  curl -H "Authorization: Bearer $(contentmill token -q)" ...`,
	RunE: runToken,
}

var tokenQuiet bool

func init() {
	tokenCmd.Flags().BoolVarP(&tokenQuiet, "quiet", "q", false, "print only the token")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(tokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: contentmill serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: contentmill serve")
	}

	if tokenQuiet {
		fmt.Println(token)
		return nil
	}

	fmt.Printf("Token: %s\n", token)
	fmt.Printf("Example: curl -H \"Authorization: Bearer %s\" http://localhost:%d/api/experiments\n", token, cfg.Port)
	return nil
}

// tokenFilePath returns the token file location, alongside the database.
func tokenFilePath() string {
	return filepath.Join(filepath.Dir(dbPath), ".contentmill-token")
}
