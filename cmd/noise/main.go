package main

import (
	"context"
	"os"

	"github.com/liliang-cn/noise/cmd/noise/cmds"
)

func main() {
	if err := cmds.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
