package testutil

import (
	"os"

	"github.com/ethaccount/sponsorop/src/utils"
	"github.com/joho/godotenv"
)

// LoadEnv loads the project .env file if there is one.
func LoadEnv() {
	_ = godotenv.Load(utils.ProjectPath(".env"))
}

func GetEnv(key string) string {
	LoadEnv()
	return os.Getenv(key)
}
