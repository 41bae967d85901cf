package main

import (
	"chatsync/internal/commands"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Reading .env failed: %v\n", err)
	}

	commands.Execute()
}
