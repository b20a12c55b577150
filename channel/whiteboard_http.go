package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-errors/errors"
)

// httpWhiteboardClient is the net/http-backed implementation of
// link.WhiteboardClient, talking to the bulletin-board wire protocol from
// spec.md §6: POST /post/{tag}, GET /get/{tag}/{from}/-1, GET
// /after/{tag}/{seconds}.
type httpWhiteboardClient struct {
	httpClient *http.Client
	base       string
}

func newHTTPWhiteboardClient(httpClient *http.Client, hostname string, port int) *httpWhiteboardClient {
	return &httpWhiteboardClient{
		httpClient: httpClient,
		base:       fmt.Sprintf("http://%s:%d", hostname, port),
	}
}

var errPostRejected = errors.New("whiteboard: post rejected, response lacked \"index\"")

// Post sends {"data": "<base64>"} to /post/{tag}. Success is detected by the
// presence of the substring "index" in the response body, matching the
// bulletin board's loosely-typed ack.
func (c *httpWhiteboardClient) Post(tag string, data []byte) error {
	body, err := json.Marshal(map[string]string{"data": string(data)})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.base+"/post/"+tag, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whiteboard: post to %s returned status %d", tag, resp.StatusCode)
	}
	if !strings.Contains(string(respBody), "index") {
		return errPostRejected
	}
	return nil
}

type getResponse struct {
	Data      []string `json:"data"`
	Length    int      `json:"length"`
	Timestamp string   `json:"timestamp"`
}

// Get fetches /get/{tag}/{from}/-1.
func (c *httpWhiteboardClient) Get(tag string, from int) ([]string, int, string, error) {
	url := fmt.Sprintf("%s/get/%s/%d/-1", c.base, tag, from)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, "", fmt.Errorf("whiteboard: get %s returned status %d", tag, resp.StatusCode)
	}

	var out getResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, "", err
	}
	return out.Data, out.Length, out.Timestamp, nil
}

type afterResponse struct {
	Index int `json:"index"`
}

// After fetches /after/{tag}/{seconds}.
func (c *httpWhiteboardClient) After(tag string, seconds float64) (int, error) {
	url := fmt.Sprintf("%s/after/%s/%g", c.base, tag, seconds)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("whiteboard: after %s returned status %d", tag, resp.StatusCode)
	}

	var out afterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Index, nil
}
