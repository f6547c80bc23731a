package main

import (
	"log/slog"
	"os"

	"ecoaction/internal/transport/http"
)

func main() {
	if err := http.Run(); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
