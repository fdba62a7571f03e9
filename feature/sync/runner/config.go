package runner

// Config holds tuning knobs for sync runs.
type Config struct {
	// PageSize is the number of records requested per page from both stores.
	PageSize int `mapstructure:"page_size" default:"50"`
	// PageDelayMS is the pause between page fetches in milliseconds.
	PageDelayMS int `mapstructure:"page_delay_ms" default:"250"`
	// ItemDelayMS is the pause between entity writes in milliseconds.
	ItemDelayMS int `mapstructure:"item_delay_ms" default:"100"`
	// RetryAttempts is the number of attempts per write before giving up.
	RetryAttempts int `mapstructure:"retry_attempts" default:"3"`
	// RetryBaseMS is the first retry delay in milliseconds; subsequent
	// delays double.
	RetryBaseMS int `mapstructure:"retry_base_ms" default:"1000"`
}
