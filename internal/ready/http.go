package ready

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// HTTP checks readiness by making an HTTP GET request.
// Any response with status < 500 is considered ready, unless RequireSuccess
// is set, in which case only 2xx counts.
type HTTP struct {
	Path           string // default "/"
	RequireSuccess bool
}

func (h *HTTP) Check(ctx context.Context, host string, port int) error {
	path := h.Path
	if path == "" {
		path = "/"
	}

	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if h.RequireSuccess && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
