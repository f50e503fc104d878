package main

import (
	"log"

	"github.com/burned13/wifiemergencia/internal/application/startup"
)

func main() {
	if err := startup.Initialize(); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
}
