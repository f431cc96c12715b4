// Command hearth runs the household API server.
package main

import (
	"fmt"
	"os"

	"hearth/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "hearth:", err)
		os.Exit(1)
	}
}
