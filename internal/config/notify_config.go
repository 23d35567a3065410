package config

import "time"

type NotifyConfig interface {
	GetMaxOutstandingNotifications() int
	GetNotificationGap() time.Duration
	GetNotificationTTL() time.Duration
}

type Notify struct{}

var _ NotifyConfig = Notify{}

func (Notify) GetMaxOutstandingNotifications() int {
	return 2
}

func (Notify) GetNotificationGap() time.Duration {
	return 1 * time.Second
}

func (Notify) GetNotificationTTL() time.Duration {
	return 5 * time.Second
}
