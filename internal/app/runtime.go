package app

import (
	"os"
	"sync"
)

const testModeEnv = "KARONGA_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip runtime side
// effects such as opening connections and binding ports.
func InTestMode() bool {
	return inTestMode()
}
