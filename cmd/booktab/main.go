// Command booktab は個人向け読書トラッカーのサーバーと管理コマンドを提供する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/booktab/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "booktab: %v\n", err)
		os.Exit(1)
	}
}
