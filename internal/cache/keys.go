package cache

import "fmt"

func SyncStatusKey(orgSlug string) string {
	return fmt.Sprintf("sync:org:%s", orgSlug)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
