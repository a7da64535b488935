package httputil_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/matzehuels/supplychain/pkg/httputil"
)

func ExampleRetry() {
	calls := 0
	err := httputil.Retry(context.Background(), httputil.NoDelayPolicy(), func() error {
		calls++
		if calls < 3 {
			return httputil.Retryable(errors.New("connection reset"))
		}
		return nil
	})
	fmt.Println("Calls:", calls)
	fmt.Println("Error:", err)
	// Output:
	// Calls: 3
	// Error: <nil>
}

func ExampleRetry_permanent() {
	calls := 0
	err := httputil.Retry(context.Background(), httputil.NoDelayPolicy(), func() error {
		calls++
		return errors.New("404 not found")
	})
	fmt.Println("Calls:", calls)
	fmt.Println("Error:", err)
	// Output:
	// Calls: 1
	// Error: 404 not found
}
