// Diary is the command-line interface for the local food diary.
package main

import (
	"os"

	"github.com/mesh-intelligence/fooddiary/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
