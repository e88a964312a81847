package mq

// testLogger returns a Logger that discards all output, for use in tests
// that need a non-nil Logger but don't care about its content.
func testLogger() *Logger {
	return discardLogger()
}
