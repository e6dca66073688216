package main

import (
	"go.uber.org/zap"

	"helparo/internal/transport/http"
)

func main() {
	if err := http.Run(); err != nil {
		zap.Must(zap.NewProduction()).Sugar().Fatalw("Server failed", "err", err)
	}
}
