package embedding

import (
	"os"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// ModelPathEnv overrides the configured model path when set.
const ModelPathEnv = "KOTAE_ONNX_MODEL"

// NewEmbedder builds the embedder from the model priority list: the configured
// preferred model, then the environment override, then the baseline model. If
// no model loads, the deterministic hash fallback is returned so embedding
// always produces some fixed-dimension vector. Never returns an error.
func NewEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) Embedder {
	var candidates []string
	if cfg.ModelPath != "" {
		candidates = append(candidates, cfg.ModelPath)
	}
	if env := os.Getenv(ModelPathEnv); env != "" && !contains(candidates, env) {
		candidates = append(candidates, env)
	}
	if cfg.BaselineModelPath != "" && !contains(candidates, cfg.BaselineModelPath) {
		candidates = append(candidates, cfg.BaselineModelPath)
	}

	for _, path := range candidates {
		emb, err := NewONNXEmbedder(path, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err != nil {
			logger.Warn("embedding model load failed, trying next",
				zap.String("model_path", path), zap.Error(err))
			continue
		}
		logger.Info("embedding model loaded", zap.String("model_path", path),
			zap.Int("dimensions", cfg.Dimensions))
		return emb
	}

	logger.Warn("no embedding model loaded, using deterministic fallback",
		zap.Int("dimensions", cfg.Dimensions))
	return NewHashEmbedder(cfg.Dimensions)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
