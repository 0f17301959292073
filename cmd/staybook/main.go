// Command staybook はUI向けAPIサーバーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/staybook/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "staybook: %v\n", err)
		os.Exit(1)
	}
}
