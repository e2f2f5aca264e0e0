package main

import (
	"os"

	"qtune/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
