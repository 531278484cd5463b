package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rzbill/slipway/internal/config"
	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/pypi"
)

var (
	// Connections command flags
	connRepository string
	connUsername   string
	connPassword   string
	connToken      string
)

// connectionsCmd represents the connections command group
var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Manage package index connections",
	Long: `Manage the index connections pipelines and uploads authenticate with.

Connections live in the slipfile. Secrets can be stored as '${ENV_VAR}'
references; they are expanded from the environment when used, so the
token itself never has to touch the file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// connectionsListCmd lists the configured connections
var connectionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured index connections",
	RunE:    runConnectionsList,
}

// connectionsAddCmd adds or replaces a connection
var connectionsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace an index connection",
	Long: `Add an index connection, prompting for the secret when it is not
passed as a flag. With --username the connection uses basic auth;
otherwise it stores an API token uploaded as the __token__ user.`,
	Args: cobra.ExactArgs(1),
	Example: `  # Token auth against pypi.org (prompts for the token)
  slipway connections add pypi

  # Custom index with basic auth
  slipway connections add openpatchminer \
    --repository https://upload.example.org/legacy/ --username deploy

  # Store an environment reference instead of the secret itself
  slipway connections add pypi --token '${PYPI_TOKEN}'`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConnectionsAdd,
}

// connectionsRemoveCmd deletes a connection
var connectionsRemoveCmd = &cobra.Command{
	Use:           "remove <name>",
	Aliases:       []string{"rm", "delete"},
	Short:         "Remove an index connection",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConnectionsRemove,
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsAddCmd)
	connectionsCmd.AddCommand(connectionsRemoveCmd)

	connectionsAddCmd.Flags().StringVar(&connRepository, "repository", "", "Upload endpoint URL (defaults to the well-known URL for pypi/testpypi)")
	connectionsAddCmd.Flags().StringVar(&connUsername, "username", "", "Username for basic auth; omit for token auth")
	connectionsAddCmd.Flags().StringVar(&connPassword, "password", "", "Password for basic auth (prompted when omitted)")
	connectionsAddCmd.Flags().StringVar(&connToken, "token", "", "API token (prompted when omitted)")
}

// connectionsConfigPath is where connection edits land: the slipfile
// passed with --config, or the per-user one.
func connectionsConfigPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.UserConfigPath()
}

// runConnectionsList is the entry point for the connections list command
func runConnectionsList(cmd *cobra.Command, args []string) error {
	if len(cfg.Connections) == 0 {
		fmt.Println("No index connections configured.")
		fmt.Println(format.Dim("💬 Add one with: slipway connections add pypi"))
		return nil
	}

	rows := [][]string{{"NAME", "REPOSITORY", "AUTH"}}
	for _, conn := range cfg.Connections {
		rows = append(rows, []string{conn.Name, conn.Repository, authLabel(conn)})
	}

	fmt.Println()
	if err := newTable().WithData(rows).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// authLabel describes a connection's auth without exposing the secret.
func authLabel(conn config.IndexConnection) string {
	if conn.Auth.Type == "token" || (conn.Auth.Token != "" && conn.Auth.Username == "") {
		return "token"
	}
	if conn.Auth.Username != "" {
		return fmt.Sprintf("basic (%s)", conn.Auth.Username)
	}
	return "none"
}

// runConnectionsAdd is the entry point for the connections add command
func runConnectionsAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	repository := connRepository
	if repository == "" {
		repository = pypi.DefaultRepositoryURLs[name]
	}
	if repository == "" {
		return fmt.Errorf("no well-known URL for %q; pass --repository", name)
	}

	conn := config.IndexConnection{Name: name, Repository: repository}

	if connUsername != "" {
		password := connPassword
		if password == "" {
			var err error
			if password, err = promptSecret(fmt.Sprintf("Password for %s", name)); err != nil {
				return err
			}
		}
		conn.Auth = config.IndexAuth{Type: "basic", Username: connUsername, Password: password}
	} else {
		token := connToken
		if token == "" {
			var err error
			if token, err = promptSecret(fmt.Sprintf("API token for %s", name)); err != nil {
				return err
			}
		}
		if token == "" {
			return fmt.Errorf("an API token is required (or pass --username for basic auth)")
		}
		conn.Auth = config.IndexAuth{Type: "token", Token: token}
	}

	path, err := connectionsConfigPath()
	if err != nil {
		return err
	}
	if err := config.AddConnection(path, conn); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	fmt.Printf("%s Saved connection %s to %s\n", format.StatusSymbol(true), format.Highlight(name), path)
	return nil
}

// runConnectionsRemove is the entry point for the connections remove command
func runConnectionsRemove(cmd *cobra.Command, args []string) error {
	path, err := connectionsConfigPath()
	if err != nil {
		return err
	}
	if err := config.RemoveConnection(path, args[0]); err != nil {
		return err
	}

	fmt.Printf("%s Removed connection %s from %s\n", format.StatusSymbol(true), format.Highlight(args[0]), path)
	return nil
}

// promptSecret reads a secret without echoing when stdin is a
// terminal, falling back to a plain line read for piped input.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())

	if term.IsTerminal(fd) {
		fmt.Printf("%s: ", label)
		secret, err := term.ReadPassword(fd)
		fmt.Print("\n")
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
