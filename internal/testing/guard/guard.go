// Package guard switches the process into test mode when imported, so
// binaries and app wiring skip network side effects under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("INNKEEP_TEST_MODE") == "" {
			_ = os.Setenv("INNKEEP_TEST_MODE", "1")
		}
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
	})
}
