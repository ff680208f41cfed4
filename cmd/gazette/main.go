package main

import (
	"gazette/cmd/handlers"
	"gazette/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
