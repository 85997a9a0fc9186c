package main

import (
	"os"
)

const (
	EXIT_OK      = 0
	EXIT_FAILURE = 1
	EXIT_CONFIG  = 2
)

func main() {
	os.Exit(Initialize(os.Args))
}
