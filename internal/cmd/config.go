package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/replysmith/replysmith/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long:  "Print the merged configuration (defaults, config file, environment) with secrets redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(viper.GetViper()); err != nil {
			return err
		}

		settings := viper.AllSettings()
		redactSecrets(settings)

		payload, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}

		if file := viper.ConfigFileUsed(); file != "" {
			fmt.Printf("# config file: %s\n", file)
		}
		fmt.Print(string(payload))
		return nil
	},
}

// redactSecrets masks credential values in place. Matches on key name so
// nested sections are covered without enumerating each path.
func redactSecrets(settings map[string]interface{}) {
	for key, value := range settings {
		switch typed := value.(type) {
		case map[string]interface{}:
			redactSecrets(typed)
		case string:
			if typed == "" {
				continue
			}
			lower := strings.ToLower(key)
			if strings.Contains(lower, "key") || strings.Contains(lower, "secret") ||
				strings.Contains(lower, "token") || strings.Contains(lower, "password") {
				settings[key] = "[redacted]"
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
