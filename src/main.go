package main

import (
	"fmt"
	"os"

	"stc/src/cmd/stc"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
