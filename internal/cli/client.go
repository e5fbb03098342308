package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/config"
)

var apiAddr string

// serviceAddr resolves the API base URL: an explicit --addr wins,
// otherwise the port comes from the config file.
func serviceAddr() string {
	if apiAddr != "" {
		return apiAddr
	}
	port := 8080
	if cfg, err := config.Load(cfgPath); err == nil {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(url string, v any) error {
	resp, err := apiClient().Get(url)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// postAction hits a task action endpoint and returns the status line
// from the response body.
func postAction(path string) (string, error) {
	resp, err := apiClient().Post(serviceAddr()+path, "application/json", nil)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %s", resp.Status, readAPIError(resp.Body))
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body["status"], nil
}

func readAPIError(r io.Reader) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&e); err != nil || e.Error == "" {
		return "unknown error"
	}
	return e.Error
}
