package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "HABITAR_TEST_MODE"

var testMode atomic.Pointer[bool]

func readTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(&on)
	return on
}

// InTestMode reports whether binaries should skip startup and the router should stay quiet.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return readTestMode()
}

// RefreshTestMode re-reads HABITAR_TEST_MODE after the environment changes.
func RefreshTestMode() {
	readTestMode()
}
