package internal

import (
	"fmt"
)

// AssertNoError panics on errors that only a programming mistake can cause.
func AssertNoError(err error, because string) {
	if err == nil {
		return
	}
	panic(fmt.Sprintf("unexpected error although %s: %v", because, err))
}
