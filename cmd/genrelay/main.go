package main

import (
	"fmt"
	"os"
)

func main() {
	root := buildRootCmd(os.LookupEnv)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
