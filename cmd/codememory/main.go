package main

import (
	"github.com/joho/godotenv"

	"github.com/dshills/codememory/internal/cli"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cli.Version = version
	cli.Execute()
}
