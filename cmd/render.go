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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/digestran/internal/render"
)

var (
	renderInput  string
	renderOutput string
	renderTitle  string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a translated digest as HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(renderInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		out := renderOutput
		if out == "" {
			out = htmlPath(renderInput)
		}
		if out == renderInput {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		page, err := render.HTML(string(raw), render.Options{Title: renderTitle, GeneratedAt: time.Now()})
		if err != nil {
			return err
		}
		if err := writeFile(out, []byte(page)); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderInput, "input", "i", "", "Translated digest file (required)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "HTML output file (default: input with .html)")
	renderCmd.Flags().StringVar(&renderTitle, "title", render.DefaultTitle, "Page title")
	renderCmd.MarkFlagRequired("input")
}
