package main

import (
	"fmt"
	"os"

	"watt/watt-client/pkg/config"
	"watt/watt-client/pkg/postgres"
	"watt/watt-client/pkg/remote"
	"watt/watt-client/pkg/rest"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	useMemory  bool

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "watt",
		Short:         "Client for the watt appliance and feedback registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = c
			return setupLogging(cfg.Logging)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the reference registry server",
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")
	serveCmd.Flags().BoolVar(&useMemory, "memory", false, "keep data in memory instead of Postgres")

	rootCmd.AddCommand(serveCmd)
	addClientCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, remote.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, "Session expired. Run `watt login` to sign in again.")
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", remote.UserMessage(err))
		os.Exit(1)
	}
}

// loadConfig reads path, falling back to defaults plus environment when the
// file does not exist.
func loadConfig(path string) (*config.Config, error) {
	c, err := config.LoadConfig(path)
	if err != nil && os.IsNotExist(errors.Cause(err)) {
		log.WithFields(log.Fields{
			"path": path,
		}).Debug("no config file, using defaults")
		return config.FromEnv()
	}
	if err != nil {
		log.WithFields(log.Fields{
			"path":  path,
			"error": err,
		}).Error("error loading config")
		return nil, err
	}
	return c, nil
}

func setupLogging(lc *config.LoggingConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return errors.Wrap(config.ErrInvalidConfig, err.Error())
	}
	log.SetLevel(level)

	if lc.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", lc.File)
		}
		log.SetOutput(f)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Security.Secret == "" {
		return errors.Wrap(config.ErrInvalidConfig, "security.secret must be set to serve")
	}

	var repo rest.Repository
	if useMemory {
		repo = rest.NewMemory()
	} else {
		db, err := postgres.NewService(cfg)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("unable to start database service")
			return err
		}
		defer db.Close()
		repo = db
	}

	webEngine := gin.New()
	rest.NewServer(cfg, webEngine, repo).Initialise()

	log.WithFields(log.Fields{
		"port":   cfg.API.Port,
		"memory": useMemory,
	}).Info("Watt API Listening")
	return webEngine.Run(fmt.Sprintf("%v:%v", "0.0.0.0", cfg.API.Port))
}
