package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/sleuth/cmd/sleuth/cmds"
	"github.com/go-go-golems/sleuth/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "sleuth researches data points about companies with an LLM agent",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
	SilenceUsage: true,
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func initConfig(configPath string) error {
	viper.SetEnvPrefix("sleuth")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("sleuth")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.sleuth")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/sleuth")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, flags and environment only
	} else if err != nil {
		return err
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	settings.SetDefaults(viper.GetViper())

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Bool("with-caller", false, "Log caller")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also log to this file, rotated")
	pf.String("config", "", "Path to config file (default ./sleuth.yaml or ~/.sleuth/sleuth.yaml)")
	pf.Bool("verbose", false, "Verbose output")

	pf.String("openai-api-key", "", "OpenAI API key")
	pf.String("firecrawl-api-key", "", "Firecrawl API key")
	pf.String("model", "", "Model used by the agent")
	pf.String("prompts-dir", "", "Directory with prompt templates overriding the builtin ones")
	pf.String("tools-dir", "", "Directory with tool schemas and tool_sets.json")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			configFile = os.Args[idx+1]
		} else if strings.HasPrefix(arg, "--config=") {
			configFile = strings.TrimPrefix(arg, "--config=")
		}
	}

	if err := initConfig(configFile); err != nil {
		cobra.CheckErr(err)
	}

	for key, flag := range map[string]string{
		"openai.api-key":    "openai-api-key",
		"firecrawl.api-key": "firecrawl-api-key",
		"openai.model":      "model",
	} {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(flag)))
	}

	rootCmd.AddCommand(cmds.NewWebsiteCommand())
	rootCmd.AddCommand(cmds.NewSearchCommand())
	rootCmd.AddCommand(cmds.NewToolsCommand())
	rootCmd.AddCommand(cmds.NewTokensCommand())
}
