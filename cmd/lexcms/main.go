// lexcms はLegal Update CMSのバックエンドサーバー。
//
// Usage:
//
//	lexcms [serve]
//	lexcms migrate [--down] [--steps=N]
//	lexcms healthcheck [--url=http://localhost:8080]
//	lexcms create-user --email=<email> --name=<name> --password=<password> [--role=admin]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/lexcms/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
