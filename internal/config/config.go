package config

import "os"

type Config struct {
	APIBaseURL    string
	HubURL        string
	StreamBaseURL string
	Nick          string
}

func FromEnv() Config {
	c := Config{}
	c.APIBaseURL = getenv("API_BASE_URL", "http://localhost:8080/api")
	c.HubURL = getenv("HUB_URL", "ws://localhost:8080/hub")
	c.StreamBaseURL = getenv("STREAM_BASE_URL", "http://localhost:8080/api")
	c.Nick = getenv("NICK", "guest")
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
