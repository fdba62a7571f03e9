package remote

// Config holds configuration for the target store Admin API client.
// Source store credentials are per-connection and come from the database.
type Config struct {
	// ShopDomain is the myshopify domain of the target store.
	ShopDomain string `mapstructure:"shop_domain" default:""`
	// AccessToken is the Admin API access token for the target store.
	AccessToken string `mapstructure:"access_token" default:""`
	// APIVersion is the Admin API version to call.
	APIVersion string `mapstructure:"api_version" default:"2024-10"`
	// TimeoutSeconds is the HTTP request timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// PageSize is the number of records requested per page.
	PageSize int `mapstructure:"page_size" default:"50"`
}
