package main

import (
	"github.com/joho/godotenv"

	"semdex/internal/cli"
)

func main() {
	// Pick up API keys from a local .env if present.
	_ = godotenv.Load()

	cli.Execute()
}
