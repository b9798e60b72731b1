package main

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	WordPackDir string
	StaticDir   string
	LogDir      string
}

func MustLoadConfig() *Config {
	godotenv.Load()
	port := os.Getenv("PORT")
	if port == "" {
		port = "3007"
	}
	wordPackDir := os.Getenv("WORD_PACK_DIR")
	if wordPackDir == "" {
		panic("WORD_PACK_DIR is not provided!")
	}
	return &Config{
		Port:        port,
		WordPackDir: wordPackDir,
		StaticDir:   os.Getenv("STATIC_DIR"),
		LogDir:      os.Getenv("LOG_DIR"),
	}
}
