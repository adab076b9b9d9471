package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/documents.db"
	}
	if cfg.Storage.VectorStoreDir == "" {
		cfg.Storage.VectorStoreDir = "/usr/local/var/kotae/data/vectors"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Index.ChunkSize == 0 {
		cfg.Index.ChunkSize = 512
	}
	if cfg.Index.ChunkOverlap == 0 {
		cfg.Index.ChunkOverlap = 64
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 5
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".pdf", ".odt", ".rtf", ".xlsx"}
	}
	if cfg.Augment.Model == "" {
		cfg.Augment.Model = "gpt-4o-mini"
	}
	if cfg.Augment.APIKeyEnv == "" {
		cfg.Augment.APIKeyEnv = "KOTAE_AUGMENT_API_KEY"
	}
}
