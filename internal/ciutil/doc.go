// Package ciutil detects the CI environment and resolves settings that may
// come from several environment variables.
//
// The CLI uses it to switch the logger into CI mode, and the integration
// test helpers use it to find the test database URL.
package ciutil
