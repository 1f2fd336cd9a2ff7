package flows

import (
	"fmt"
	"strconv"
)

func wrapStore(sentinel, err error) error {
	return fmt.Errorf("%w: %v", sentinel, err)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
