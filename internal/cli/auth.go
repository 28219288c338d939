package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/source"
)

var loginTimeout time.Duration

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Connect or disconnect your Gmail account",
	Long: `Auth manages read-only access to Gmail.

Login needs an OAuth client of type "Desktop app" from the Google Cloud
console. Save its JSON as credentials.json in the data directory (or point
gmail.credentials_file at it).`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize read-only Gmail access in the browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen for redirect: %w", err)
		}
		redirectURL := fmt.Sprintf("http://%s/", ln.Addr().String())
		state := uuid.NewString()

		authURL, err := a.auth.AuthCodeURL(redirectURL, state)
		if err != nil {
			_ = ln.Close()
			return err
		}

		fmt.Fprintln(os.Stderr, "Open this URL in your browser to grant read-only Gmail access:")
		fmt.Fprintf(os.Stderr, "\n  %s\n\n", authURL)
		fmt.Fprintln(os.Stderr, "Waiting for the redirect...")

		code, err := source.ReceiveCode(ctx, ln, state)
		if err != nil {
			return err
		}
		if err := a.auth.Exchange(ctx, redirectURL, code); err != nil {
			return err
		}

		if _, err := a.stores.Settings.Update(ctx, func(s *model.Settings) error {
			s.Authenticated = true
			return nil
		}); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "✓ Gmail connected")
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke Gmail access and delete the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if !a.auth.Authenticated() {
			fmt.Fprintln(os.Stderr, "Not logged in")
		} else {
			revoked, err := a.auth.Revoke(ctx)
			if err != nil {
				return err
			}
			if revoked {
				fmt.Fprintln(os.Stderr, "✓ Access revoked")
			} else {
				fmt.Fprintln(os.Stderr, "⚠ Google did not confirm the revocation; the local token was deleted")
			}
		}

		_, err = a.stores.Settings.Update(ctx, func(s *model.Settings) error {
			s.Authenticated = false
			return nil
		})
		return err
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a Gmail token is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		auth := source.NewAuthenticator(cfg.Gmail, nil)
		if auth.Authenticated() {
			fmt.Printf("✓ Authenticated (token: %s)\n", cfg.Gmail.TokenFile)
			return nil
		}
		fmt.Println("✗ Not authenticated. Run 'applytrail auth login'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)

	authLoginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the browser redirect")
}
