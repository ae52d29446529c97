//go:build !onnx

package main

import (
	"fmt"

	"github.com/becomeliminal/aide-go/config"
	"github.com/becomeliminal/aide-go/memory"
	"github.com/becomeliminal/aide-go/memory/embedder/mock"
)

// newEmbedder without the onnx tag only offers the hash embedder. Asking
// for onnx in this build is a config error, not a silent downgrade.
func newEmbedder(cfg *config.Config) (memory.Embedder, error) {
	if cfg.Embedder == "onnx" {
		return nil, fmt.Errorf("onnx embedder requires a binary built with -tags onnx")
	}
	return mock.New(), nil
}
