package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"qteams/config"
	"qteams/logging"
	"qteams/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "qteams",
	Short: "Turn-based quiz team server",
	Long: `qteams runs the quiz team server: users form teams around a topic,
write questions for each other, answer them and score the answers round
by round.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./qteams.yaml)")
}

func initConfig() {
	// A missing .env is fine; variables may come from the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("qteams")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/qteams")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: failed to read config: %v\n", err)
		}
	}
}

// loadConfig decodes the configuration and builds the logger for it.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format), nil
}

// openDatabase connects and migrates the schema.
func openDatabase(cfg *config.Config, log *logging.Logger) (*gorm.DB, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database ready", "driver", cfg.Database.Driver)
	return db, nil
}
