package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/seqrnn/cmd/seqrnn/commands"
	"github.com/inferloop/seqrnn/pkg/constants"
)

func main() {
	global := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: constants.AppDescription,
		Long: `Train a vanilla recurrent network that labels every timestep of a sequence,
using backpropagation through time, minibatch SGD and patience-based early stopping.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&global.ConfigFile, "config", "", "config file (default is ./seqrnn.yaml or $HOME/.seqrnn/seqrnn.yaml)")
	rootCmd.PersistentFlags().String("log-level", constants.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", constants.DefaultLogFormat, "Log format (text, json)")
	cobra.CheckErr(viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format")))

	rootCmd.AddCommand(commands.NewTrainCmd(global))
	rootCmd.AddCommand(commands.NewSynthCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		commands.PrintError(os.Stderr, viper.GetViper(), err)
		os.Exit(1)
	}
}
