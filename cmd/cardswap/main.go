package main

import (
	"os"

	"github.com/cardswap/cardswap/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
