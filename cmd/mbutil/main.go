// Command mbutil converts between tile directories and MBTiles containers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mbutil:", err)
		os.Exit(1)
	}
}
