package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/applytrail/internal/model"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
	dataDir string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "applytrail",
	Short: "applytrail - track job applications from your inbox",
	Long: `applytrail scans a recent window of your Gmail inbox, asks a language model
which messages confirm a job application you submitted, and keeps a
deduplicated log of company, position and date that you can export to CSV.

Every message is looked at once. Reruns only pay for new mail.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("applytrail %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.applytrail/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for settings, seen set and records (default: $HOME/.applytrail)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	// API keys usually live in .env next to the working directory
	_ = godotenv.Load()

	// Register every key with its default so env overrides apply to all of them
	viper.SetConfigType("yaml")
	if defaults, err := yaml.Marshal(model.DefaultConfig()); err == nil {
		_ = viper.ReadConfig(bytes.NewReader(defaults))
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(model.DefaultDataDir())
		viper.SetConfigName("config")
	}

	// Read in environment variables that match APPLYTRAIL_*
	viper.SetEnvPrefix("APPLYTRAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the effective configuration
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Paths derived from the data dir follow it unless set explicitly
	if dir := cfg.Data.Dir; dir != model.DefaultDataDir() {
		defaults := model.DefaultConfig()
		if cfg.Data.ExportDir == defaults.Data.ExportDir {
			cfg.Data.ExportDir = filepath.Join(dir, "exports")
		}
		if cfg.Gmail.CredentialsFile == defaults.Gmail.CredentialsFile {
			cfg.Gmail.CredentialsFile = filepath.Join(dir, "credentials.json")
		}
		if cfg.Gmail.TokenFile == defaults.Gmail.TokenFile {
			cfg.Gmail.TokenFile = filepath.Join(dir, "token.json")
		}
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
