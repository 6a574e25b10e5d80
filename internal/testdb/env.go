package testdb

import "github.com/phrazzld/cronq/internal/ciutil"

// Environment variables consulted for the test database URL, in order.
const (
	EnvDatabaseURL    = "DATABASE_URL"
	EnvCronqTestDBURL = "CRONQ_TEST_DB_URL"
)

// GetTestDatabaseURL returns the first non-empty database URL from the
// environment, or "" when none is set.
func GetTestDatabaseURL() string {
	return ciutil.GetEnvWithFallbacks([]string{EnvDatabaseURL, EnvCronqTestDBURL}, "", nil)
}

// IsIntegrationTestEnvironment returns true if a database URL is configured,
// indicating that integration tests can be run.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// ShouldSkipDatabaseTest returns true if database integration tests should be skipped.
func ShouldSkipDatabaseTest() bool {
	return !IsIntegrationTestEnvironment()
}
