/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/digestran/internal/config"
)

var version = "0.1.0"

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "digestran",
	Short: "Concurrent translator for ranked news digests",
	Long: `digestran translates a digest of ranked news lists chunk by chunk.

Each blank-line separated section is translated by a pool of workers that
share one request rate limit. A chunk falls back from the primary to the
fallback model when the primary fails, and the translated sections are
reassembled in their original order.

Supported providers: gemini, openrouter, ollama, google

Settings come from defaults, --config, DIGESTRAN_* environment variables
and flags, in increasing precedence.

Use "digestran translate --help" for translation options.`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("db", "./data/digestran.db", "Database path for digest history")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this rotating file")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"db":        "db",
		"log_level": "log-level",
		"log_file":  "log-file",
	})
}
