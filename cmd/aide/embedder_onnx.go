//go:build onnx

package main

import (
	"fmt"

	"github.com/becomeliminal/aide-go/config"
	"github.com/becomeliminal/aide-go/memory"
	"github.com/becomeliminal/aide-go/memory/embedder/mock"
	"github.com/becomeliminal/aide-go/memory/embedder/onnx"
)

func newEmbedder(cfg *config.Config) (memory.Embedder, error) {
	switch cfg.Embedder {
	case "onnx":
		return onnx.New(onnx.Config{
			ModelPath:     cfg.ONNXModelPath,
			TokenizerPath: cfg.TokenizerPath,
		})
	case "mock", "":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}
