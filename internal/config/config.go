package config

type Config interface {
	EnvConfig
	CorsConfig
	IntegrationConfig
	SyncConfig
	NotifyConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Integration
	Sync
	Notify
	Storage
}

func New() Config {
	return mainConfig{}
}
