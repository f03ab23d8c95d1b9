/*
Copyright © 2026 The subrefine authors

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

	"github.com/spf13/viper"

	"subrefine/internal/completion"
)

const (
	defaultOpenRouterModel = "google/gemini-2.0-flash-exp:free"
	defaultOllamaModel     = "llama3.1:8b"
)

// buildClient constructs the completion backend from flags, falling back to
// viper-bound config/env values for anything left empty.
func buildClient(backend, apiKey, baseURL, model string) (completion.Client, error) {
	if apiKey == "" {
		apiKey = viper.GetString("api_key")
	}
	if baseURL == "" {
		baseURL = viper.GetString("base_url")
	}
	if model == "" {
		model = viper.GetString("model")
	}

	switch backend {
	case "openrouter":
		if apiKey == "" {
			return nil, fmt.Errorf("openrouter backend requires an API key (--api-key or SUBREFINE_API_KEY)")
		}
		if model == "" {
			model = defaultOpenRouterModel
		}
		return completion.NewOpenRouterClient(apiKey, baseURL, model), nil
	case "ollama":
		if model == "" {
			model = defaultOllamaModel
		}
		return completion.NewOllamaClient(model, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (expected openrouter or ollama)", backend)
	}
}
