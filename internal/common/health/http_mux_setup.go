package health

import (
	"net/http"
)

func SetupHttpMux(mux *http.ServeMux, checker Checker, healthyStatus string) {
	handler := NewHealthCheckHttpHandler(checker, healthyStatus)
	mux.Handle("/health", handler)
}
