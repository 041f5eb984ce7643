/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comport",
	Short: "Discover and watch Windows serial ports",
	Long: `comport discovers serial ports on Windows and watches them come and go.

It enumerates attached COM ports with their USB vendor/product ids from
the registry, streams Plug and Unplug events as devices are attached and
removed, and can track specific devices until they are unplugged.

Examples:
  comport list
  comport watch --tui
  comport track 2fe3:0100`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.comport.yaml)")
	rootCmd.PersistentFlags().StringP("session", "s", "default", "session name shared by watch and track")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log engine diagnostics to stderr")
	viper.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".comport" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".comport")
	}

	viper.SetEnvPrefix("comport")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// sessionName returns the session name subcommands share, so that watch
// and track against the same name reuse one OS subscription.
func sessionName() string {
	return viper.GetString("session")
}

// newLogger builds the stderr logger handed to the engine. Debug level
// when --verbose is set, warnings only otherwise.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
