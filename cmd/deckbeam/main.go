package main

import (
	"log"

	"github.com/deckbeam/deckbeam/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalln(err)
	}
}
