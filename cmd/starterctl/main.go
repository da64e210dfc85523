package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dimitrije/starter-api/internal/logger"
	"github.com/dimitrije/starter-api/pkg/client"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appName = "starterctl"

var (
	serverURL string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Sign in and manage your account from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultServer := os.Getenv("STARTER_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "API base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client activity to stderr")

	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd, profileCmd, passwordResetCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// app is one composed session backed by the credentials file.
type app struct {
	identity *client.IdentityClient
	composer *session.Composer
	log      *zap.Logger
}

// openApp restores the stored session and waits until the composer has
// settled on a state.
func openApp(cmd *cobra.Command) (*app, error) {
	log := zap.NewNop()
	if verbose {
		l, err := logger.New("development", "debug")
		if err != nil {
			return nil, err
		}
		log = l
	}

	path, err := client.DefaultCredentialsPath(appName)
	if err != nil {
		return nil, fmt.Errorf("locate credentials: %w", err)
	}

	cfg := client.DefaultConfig(serverURL)
	cfg.Logger = log
	cfg.Tokens = &client.FileTokenStore{Path: path}
	cfg.Popup = terminalPopup(stdinReader(cmd), cmd.ErrOrStderr())

	identity := client.NewIdentityClient(cfg)
	composer := session.NewComposer(identity, identity, client.NewStoreClient(cfg), nil, log)

	ctx := cmd.Context()
	if err := composer.Start(ctx); err != nil {
		return nil, err
	}
	if err := identity.Load(ctx); err != nil {
		composer.Close()
		return nil, err
	}
	return &app{identity: identity, composer: composer, log: log}, nil
}

func (a *app) Close() {
	a.composer.Close()
	_ = a.log.Sync()
}

// terminalPopup prints the consent URL and reads the one-time code the
// callback page shows.
func terminalPopup(reader *bufio.Reader, out io.Writer) client.PopupFunc {
	return func(ctx context.Context, consentURL string) (string, error) {
		fmt.Fprintf(out, "Open this URL in your browser to continue:\n\n  %s\n\n", consentURL)
		fmt.Fprint(out, "Paste the code shown after sign-in: ")
		line, err := reader.ReadString('\n')
		code := strings.TrimSpace(line)
		if code == "" {
			if err == nil {
				err = errors.New("no code entered")
			}
			return "", err
		}
		return code, nil
	}
}

func describe(err error) string {
	var serr *session.Error
	if errors.As(err, &serr) {
		return fmt.Sprintf("%s (%s)", serr.Message, serr.Code)
	}
	return err.Error()
}
