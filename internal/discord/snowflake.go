package discord

import (
	"strconv"
	"time"
)

// Discord epoch: 2015-01-01T00:00:00Z in Unix milliseconds.
const epochMillis = 1420070400000

// SnowflakeTime extracts the creation timestamp embedded in a snowflake ID.
// The top 42 bits are milliseconds since the Discord epoch, which makes
// snowflakes a reliable creation-order tie-break even when a listing's
// order is undefined. Returns the zero time for a malformed ID, which
// sorts before every real timestamp.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + epochMillis
	return time.UnixMilli(ms).UTC()
}
