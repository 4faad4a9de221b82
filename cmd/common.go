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
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/valpere/digestran/internal/config"
	"github.com/valpere/digestran/internal/logging"
	"github.com/valpere/digestran/internal/store"
	"github.com/valpere/digestran/internal/translator"
	"github.com/valpere/digestran/internal/validator"
)

// bindFlags ties config keys to flags so that a flag set on the command line
// overrides the file and the environment.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// buildService constructs the translation backend named by cfg.Provider.
func buildService(cfg *config.Config) (translator.TranslationService, error) {
	var svc translator.TranslationService

	switch cfg.Provider {
	case config.ProviderGemini:
		svc = translator.NewGeminiService(cfg.APIKey, cfg.BaseURL, cfg.CallTimeout)
	case config.ProviderOpenRouter:
		svc = translator.NewOpenRouterService(cfg.APIKey, cfg.BaseURL, cfg.CallTimeout)
	case config.ProviderOllama:
		svc = translator.NewOllamaService(cfg.BaseURL, cfg.CallTimeout)
	case config.ProviderGoogle:
		svc = translator.NewGoogleService(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	if cfg.ValidateLanguage {
		svc = translator.NewValidatedService(svc, validator.New(cfg.SourceLang, cfg.TargetLang))
	}
	return svc, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	log, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, closer, nil
}

// openStore opens the history database, creating its directory.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
