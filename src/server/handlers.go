package server

import (
	"net/http"
)

func handleHealth(_ appContext, w http.ResponseWriter, _ *http.Request) (int, error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
	return http.StatusOK, nil
}
