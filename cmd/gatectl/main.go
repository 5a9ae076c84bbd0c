// AngelaMos | 2026
// main.go

package main

import (
	"os"

	"github.com/carterperez-dev/gatepass/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
