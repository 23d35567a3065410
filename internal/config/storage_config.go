package config

type StorageConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetDatabaseURL() string
	GetConnectionKey() string
	GetHintSealKey() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetRedisAddr enables the Redis-backed hint cache and flow-state repo when set.
func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

// GetDatabaseURL enables the Postgres token store when set.
func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

// GetConnectionKey identifies this installation's integration connection in shared stores.
func (Storage) GetConnectionKey() string {
	return GetEnv("CONNECTION_KEY", "default")
}

// GetHintSealKey is a hex encoded 32 byte key for sealing the cached token blob.
func (Storage) GetHintSealKey() string {
	return GetEnv("HINT_SEAL_KEY", "")
}
