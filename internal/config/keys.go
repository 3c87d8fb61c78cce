package config

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration // stored as a string, checked by Validate
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	flag    string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.data_dir", typ: kString, env: "BILLMATCH_STORAGE_DATA_DIR", flag: "data-dir",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "BILLMATCH_LOG_LEVEL", flag: "log-level",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "batch.size", typ: kInt, env: "BILLMATCH_BATCH_SIZE", flag: "batch-size",
		apply:   func(cfg *Config, v any) { cfg.Batch.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Size },
	},
	{
		key: "batch.max_concurrent", typ: kInt, env: "BILLMATCH_BATCH_MAX_CONCURRENT", flag: "max-concurrent-batches",
		apply:   func(cfg *Config, v any) { cfg.Batch.MaxConcurrent = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.MaxConcurrent },
	},
	{
		key: "batch.workers", typ: kInt, env: "BILLMATCH_BATCH_WORKERS", flag: "workers-per-batch",
		apply:   func(cfg *Config, v any) { cfg.Batch.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Workers },
	},
	{
		key: "batch.min_sections", typ: kInt, env: "BILLMATCH_BATCH_MIN_SECTIONS", flag: "min-sections",
		apply:   func(cfg *Config, v any) { cfg.Batch.MinSections = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.MinSections },
	},
	{
		key: "batch.year_start", typ: kInt, env: "BILLMATCH_BATCH_YEAR_START", flag: "year-start",
		apply:   func(cfg *Config, v any) { cfg.Batch.YearStart = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.YearStart },
	},
	{
		key: "batch.year_end", typ: kInt, env: "BILLMATCH_BATCH_YEAR_END", flag: "year-end",
		apply:   func(cfg *Config, v any) { cfg.Batch.YearEnd = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.YearEnd },
	},
	{
		key: "batch.section_timeout", typ: kDuration, env: "BILLMATCH_BATCH_SECTION_TIMEOUT", flag: "section-timeout",
		apply:   func(cfg *Config, v any) { cfg.Batch.SectionTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Batch.SectionTimeout },
	},
	{
		key: "batch.max_retries", typ: kInt, env: "BILLMATCH_BATCH_MAX_RETRIES", flag: "max-retries",
		apply:   func(cfg *Config, v any) { cfg.Batch.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.MaxRetries },
	},
	{
		key: "batch.retry_delay", typ: kDuration, env: "BILLMATCH_BATCH_RETRY_DELAY", flag: "retry-delay",
		apply:   func(cfg *Config, v any) { cfg.Batch.RetryDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Batch.RetryDelay },
	},
	{
		key: "matching.cache_size", typ: kInt, env: "BILLMATCH_MATCHING_CACHE_SIZE", flag: "cache-size",
		apply:   func(cfg *Config, v any) { cfg.Matching.CacheSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.CacheSize },
	},
	{
		key: "matching.title_candidates", typ: kInt, env: "BILLMATCH_MATCHING_TITLE_CANDIDATES", flag: "title-candidates",
		apply:   func(cfg *Config, v any) { cfg.Matching.TitleCandidates = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.TitleCandidates },
	},
	{
		key: "server.port", typ: kInt, env: "BILLMATCH_SERVER_PORT", flag: "port",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "BILLMATCH_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}
