package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/applytrail/internal/model"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change saved settings",
	Long: `Settings are saved in the data directory and apply to every run.

Fields:
  backend        openai, anthropic, gemini, groq, ollama
  lookback_days  7, 14, 30, 60, 90
  max_items      1-200`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print saved settings (API keys masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		settings, err := a.stores.Settings.Load(ctx)
		if err != nil {
			return err
		}
		settings.Credentials = settings.MaskedCredentials()

		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("error marshaling settings: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Change a setting",
	Example: `  applytrail settings set backend groq
  applytrail settings set lookback_days 14
  applytrail settings set max_items 100`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSettings(func(s *model.Settings) error {
			return applySetting(s, args[0], args[1])
		})
	},
}

var settingsCredentialCmd = &cobra.Command{
	Use:   "credential <backend> [key]",
	Short: "Store an API key for a backend (omit key to remove it)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := strings.ToLower(args[0])
		if !slices.Contains(model.Backends, backend) {
			return fmt.Errorf("%w: unknown backend %q", model.ErrInvalidSettings, args[0])
		}
		key := ""
		if len(args) == 2 {
			key = strings.TrimSpace(args[1])
		}
		return updateSettings(func(s *model.Settings) error {
			if key == "" {
				delete(s.Credentials, backend)
				return nil
			}
			s.Credentials[backend] = key
			return nil
		})
	},
}

func updateSettings(fn func(*model.Settings) error) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.stores.Settings.Update(ctx, fn); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "✓ Settings saved")
	return nil
}

// applySetting parses value into the named field
func applySetting(s *model.Settings, field, value string) error {
	switch strings.ReplaceAll(strings.ToLower(field), "-", "_") {
	case "backend":
		s.Backend = strings.ToLower(value)
	case "lookback_days", "lookback":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: lookback_days must be a number", model.ErrInvalidSettings)
		}
		s.LookbackDays = n
	case "max_items", "max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: max_items must be a number", model.ErrInvalidSettings)
		}
		s.MaxItems = n
	default:
		return fmt.Errorf("%w: unknown field %q (backend, lookback_days, max_items)", model.ErrInvalidSettings, field)
	}
	return s.Validate()
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsCredentialCmd)
}
