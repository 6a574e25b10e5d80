// Package testdb provides utilities for database integration tests.
//
// Tests that need PostgreSQL call NewManager, which skips the test when no
// database URL is configured. Otherwise it creates a throwaway schema with a
// unique name, applies the embedded migrations into it and drops it again
// when the test finishes, so tests can run in parallel without sharing rows.
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//
//	    m := testdb.NewManager(t)
//	    s := postgres.NewPostgresCronTaskStore(m, nil)
//	    ...
//	}
//
// The database URL is read from DATABASE_URL, falling back to
// CRONQ_TEST_DB_URL.
package testdb
