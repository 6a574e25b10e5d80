// Package mocks provides centralized mock implementations for testing.
//
// Two styles are available. MockCronTaskStore is a working in-memory store
// whose behaviour can be overridden per method through function fields, and
// TestifyMockCronTaskStore records calls with testify/mock for tests that
// assert on interactions.
//
//	func TestSomething(t *testing.T) {
//	    store := mocks.NewMockCronTaskStore()
//	    store.ClaimDueFn = func(ctx context.Context, runDate time.Time, limit int) ([]domain.CronTask, error) {
//	        return nil, store.ErrPoolExhausted
//	    }
//	    ...
//	}
package mocks
