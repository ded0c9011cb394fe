package main

import (
	"os"

	"github.com/curio-market/backend/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
