package main

import (
	"github.com/wagate/app/cmd"
)

// @title WhatsApp Gateway API
// @version 1.0
// @description Multi-tenant WhatsApp messaging gateway: sessions, auto-reply, broadcasts, contact scraping.

// @host  localhost:8000
// @BasePath /api

func main() {
	cmd.StartApp()
}
