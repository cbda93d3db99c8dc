// Command identctl is a command-line client for an ident server.
package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	os.Exit(execute())
}
