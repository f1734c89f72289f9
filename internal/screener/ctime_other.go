//go:build !linux

package screener

import (
	"os"
	"time"
)

func createdTime(info os.FileInfo) time.Time {
	return modTimeFallback(info)
}
