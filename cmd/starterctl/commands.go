package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	email    string
	password string
	provider string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a password account and sign in",
	Args:  cobra.NoArgs,
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a password or a social provider",
	Long: `Sign in with email and password, or with --provider to use
google, facebook, twitter or github. Social sign-in prints a URL to open
in a browser and asks for the code shown when sign-in completes.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profile fields",
}

var profileSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Update profile fields",
	Long: `Update profile fields. email, name and picture also update the
identity; every field is stored on the user record. Values are parsed as
YAML scalars, so "age=42" stores a number and "beta=true" a boolean.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProfileSet,
}

var passwordResetCmd = &cobra.Command{
	Use:   "password-reset",
	Short: "Email a password reset link",
	Args:  cobra.NoArgs,
	RunE:  runPasswordReset,
}

func init() {
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd, passwordResetCmd} {
		cmd.Flags().StringVar(&email, "email", "", "account email")
	}
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd} {
		cmd.Flags().StringVar(&password, "password", "", "account password, prompted when empty")
	}
	loginCmd.Flags().StringVar(&provider, "provider", "", "social provider: google, facebook, twitter or github")

	profileCmd.AddCommand(profileSetCmd)
}

func runSignup(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := promptCredentials(cmd); err != nil {
		return err
	}
	if err := a.composer.SignUp(cmd.Context(), email, password); err != nil {
		return err
	}
	return printState(cmd.OutOrStdout(), a.composer.State())
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if provider != "" {
		tag, err := session.ParseProvider(provider)
		if err != nil || !tag.Social() {
			return fmt.Errorf("unknown provider %q", provider)
		}
		if err := a.composer.SignInWithProvider(cmd.Context(), tag); err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), a.composer.State())
	}

	if err := promptCredentials(cmd); err != nil {
		return err
	}
	if err := a.composer.SignIn(cmd.Context(), email, password); err != nil {
		return err
	}
	return printState(cmd.OutOrStdout(), a.composer.State())
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.composer.SignOut(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return printState(cmd.OutOrStdout(), a.composer.State())
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	data, err := parseAssignments(args)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.composer.State().IsReady() {
		return fmt.Errorf("not signed in, run %s login first", appName)
	}
	if err := a.composer.UpdateProfile(cmd.Context(), data); err != nil {
		return err
	}
	return printState(cmd.OutOrStdout(), a.composer.State())
}

func runPasswordReset(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if email == "" {
		if email, err = prompt(cmd, "Email: "); err != nil {
			return err
		}
	}
	if err := a.composer.SendPasswordReset(cmd.Context(), email); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "If an account exists for that address, a reset link is on its way.")
	return nil
}

// parseAssignments turns key=value arguments into record fields.
func parseAssignments(args []string) (map[string]any, error) {
	data := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("parse value for %s: %w", key, err)
		}
		switch value.(type) {
		case map[string]any, []any:
			// only scalars; "tags=[a,b]" is kept as written
			value = raw
		}
		data[key] = value
	}
	return data, nil
}

func promptCredentials(cmd *cobra.Command) error {
	var err error
	if email == "" {
		if email, err = prompt(cmd, "Email: "); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = prompt(cmd, "Password: "); err != nil {
			return err
		}
	}
	return nil
}

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := stdinReader(cmd).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err == nil || err == io.EOF {
			return "", fmt.Errorf("%s is required", strings.TrimSuffix(strings.ToLower(label), ": "))
		}
		return "", err
	}
	return line, nil
}

var stdin *bufio.Reader

// stdinReader shares one buffered reader so consecutive prompts do not
// lose piped input.
func stdinReader(cmd *cobra.Command) *bufio.Reader {
	if stdin == nil {
		stdin = bufio.NewReader(cmd.InOrStdin())
	}
	return stdin
}

func printState(w io.Writer, state session.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
