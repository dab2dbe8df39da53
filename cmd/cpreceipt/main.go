package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicpulse/receipts/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	token     string
	cfgFile   string
	output    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cpreceipt",
	Short: "CivicPulse receipt CLI",
	Long: `cpreceipt files complaints, prints receipts and checks them against a
CivicPulse receiptd server.

Citizens and help-desk staff can verify any receipt by id or short code:

  cpreceipt verify CP-7KQ2MXPA

Operators log in once and can then audit the whole ledger:

  export CPRECEIPT_TOKEN=$(cpreceipt login --operator ward-7 --quiet)
  cpreceipt audit`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.cpreceipt")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("CPRECEIPT")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.cpreceipt/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "receiptd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "operator Bearer token (or CPRECEIPT_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text or json")

	rootCmd.AddCommand(submitCmd, showCmd, verifyCmd, headCmd)
	rootCmd.AddCommand(loginCmd, auditCmd, statusCmd, hashPasswordCmd, seedCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cpreceipt version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("cpreceipt " + version)
	},
}
