/*
Copyright © 2025 tieubaoca
*/
package main

import (
	"github.com/joho/godotenv"
	"github.com/tieubaoca/invoice-qa/cmd"
)

func main() {
	cmd.Execute()
}

func init() {
	// Secrets come from .env in development; missing files are fine because
	// the memory backend and file extractor need none.
	_ = godotenv.Load()
}
