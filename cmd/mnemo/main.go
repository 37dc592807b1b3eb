// Command mnemo organizes local PDF and PowerPoint files into a searchable
// vector database and serves a local search UI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"mnemo/cmd/mnemo/cmd"
)

func main() {
	_ = godotenv.Load()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
