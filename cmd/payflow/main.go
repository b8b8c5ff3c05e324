package main

import (
	"os"

	"github.com/payflowhq/payflow/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
