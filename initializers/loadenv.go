package initializers

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
)

// LoadEnv pulls DIRECT_URL and the optional Elasticsearch/S3 settings from a
// local .env file. Deployed environments set real env vars and skip this.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		log.Println("[LoadEnv] No .env file found")
		return fmt.Errorf("could not load .env file: %w", err)
	}
	log.Println("[LoadEnv] Environment loaded from .env")
	return nil
}
