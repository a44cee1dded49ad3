package main

import (
	"log"

	"dagvault/cmd/dv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
