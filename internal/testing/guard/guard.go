// Package guard forces test mode on for any package that imports it,
// keeping runtime side effects out of test runs.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STOCKFORGE_TEST_MODE") == "" {
			_ = os.Setenv("STOCKFORGE_TEST_MODE", "1")
		}
	})
}
