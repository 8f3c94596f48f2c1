// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"log/slog"
)

// NewModelHost wires the configured adapters into a ModelHost.
//
// Description:
//
//	CLOUD_PROVIDER=mock (the default) returns a fully mocked host with no
//	network dependencies. Otherwise the local sidecar client is paired with
//	the selected cloud adapter. Unknown provider names fall back to mock
//	with a warning rather than failing startup.
func NewModelHost(cfg *ProviderConfig, logger *slog.Logger) ModelHost {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.CloudProvider {
	case "openrouter":
		local := NewLocalClient(cfg.ModelHostURL, 2*cfg.CloudTimeout, logger)
		cloud := NewOpenRouterProvider(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.CloudTimeout, logger)
		logger.Info("model host configured",
			slog.String("cloud_provider", cloud.Name()),
			slog.String("cloud_model", cloud.Model()),
			slog.String("model_host_url", cfg.ModelHostURL),
		)
		return NewHost(local, cloud)
	case "mock", "":
		logger.Info("model host configured", slog.String("cloud_provider", "mock"))
		return NewMockHost()
	default:
		logger.Warn("unknown cloud provider, using mock",
			slog.String("cloud_provider", cfg.CloudProvider))
		return NewMockHost()
	}
}
