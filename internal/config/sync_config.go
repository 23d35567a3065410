package config

import "time"

type SyncConfig interface {
	GetResourceDebounce() time.Duration
	GetLoadAllDebounce() time.Duration
	GetPacingDelay() time.Duration
	GetPageSize() int
}

type Sync struct{}

var _ SyncConfig = Sync{}

func (Sync) GetResourceDebounce() time.Duration {
	return GetEnvDuration("SYNC_RESOURCE_DEBOUNCE", 5*time.Second)
}

func (Sync) GetLoadAllDebounce() time.Duration {
	return GetEnvDuration("SYNC_LOAD_ALL_DEBOUNCE", 10*time.Second)
}

// GetPacingDelay is the gap between sequential requests of a load-all sweep (documented range 500ms-1s).
func (Sync) GetPacingDelay() time.Duration {
	return GetEnvDuration("SYNC_PACING_DELAY", 750*time.Millisecond)
}

func (Sync) GetPageSize() int {
	return GetEnvInt("SYNC_PAGE_SIZE", 100)
}
