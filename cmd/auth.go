package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/notewatch/credentials"
)

// Auth command flags.
var (
	authAPIKey         string
	authGrantID        string
	authNonInteractive bool
)

// AuthCmd represents the auth command group.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the notetaker API key",
	Long: `Manage the API key used against the notetaker service.

The key is stored encrypted in ~/.notewatch/credentials.yaml; the encryption
key lives in the system keyring. In CI, set NOTEWATCH_API_KEY and
NOTEWATCH_ENCRYPTION_KEY instead.

Environment variables take precedence over stored credentials.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the notetaker API key",
	Long: `Store the notetaker API key in the encrypted credential store.

Examples:
  # Interactive login (prompts for the API key)
  notewatch auth login

  # Login with the key on the command line
  notewatch auth login --api-key nyk_abc123...

  # Login with the key from the environment
  NOTEWATCH_API_KEY=nyk_abc123... notewatch auth login`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored API key",
	Long: `Remove the stored API key from the local credential store.

Environment variables (NOTEWATCH_API_KEY) are not affected.`,
	RunE: runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status",
	RunE:  runStatus,
}

func init() {
	loginCmd.Flags().StringVar(&authAPIKey, "api-key", "", "API key to store")
	loginCmd.Flags().StringVar(&authGrantID, "grant-id", "", "Grant id to associate with the key")
	loginCmd.Flags().BoolVar(&authNonInteractive, "non-interactive", false, "Fail instead of prompting for input")

	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	apiKey := authAPIKey
	if apiKey == "" {
		if envKey := os.Getenv("NOTEWATCH_API_KEY"); envKey != "" {
			apiKey = envKey
			fmt.Println("Using API key from NOTEWATCH_API_KEY environment variable")
		}
	}

	if apiKey == "" {
		if authNonInteractive {
			return fmt.Errorf("no API key provided and --non-interactive flag set")
		}
		apiKey, err = promptForAPIKey()
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
	}

	if apiKey == "" {
		return fmt.Errorf("API key is empty")
	}

	creds := &credentials.Credentials{
		APIKey:  apiKey,
		GrantID: authGrantID,
	}
	if err := store.Save(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Printf("API key stored (%s)\n", store.KeyProviderDescription())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if !store.Exists() {
		fmt.Println("No stored credentials.")
		return nil
	}

	if err := store.Delete(); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	fmt.Println("Credentials cleared.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if envKey := os.Getenv("NOTEWATCH_API_KEY"); envKey != "" {
		fmt.Println("Source:   NOTEWATCH_API_KEY environment variable")
		fmt.Printf("API key:  %s\n", credentials.MaskAPIKey(envKey))
		return nil
	}

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	creds, err := store.Load()
	if err != nil {
		if err == credentials.ErrNoCredentials {
			fmt.Println("Not authenticated. Run 'notewatch auth login'.")
			return nil
		}
		return fmt.Errorf("loading credentials: %w", err)
	}

	fmt.Println("Source:   stored credentials")
	fmt.Printf("API key:  %s\n", credentials.MaskAPIKey(creds.APIKey))
	if creds.GrantID != "" {
		fmt.Printf("Grant:    %s\n", creds.GrantID)
	}
	fmt.Printf("Updated:  %s\n", creds.LastUpdated.Format("2006-01-02 15:04:05"))
	fmt.Printf("Key via:  %s\n", store.KeyProviderDescription())
	return nil
}

// promptForAPIKey reads the API key without echoing it.
func promptForAPIKey() (string, error) {
	fmt.Print("API key: ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(keyBytes)), nil
}
