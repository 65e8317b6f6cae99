package triviaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
)

const (
	generatePath = "/api/trivia/generate-solo"
	cancelPath   = "/api/trivia/cancel"
	creditsPath  = "/api/credits"
)

// Client talks to a remote generation service with form posts. Every call
// carries the caller's session cookie.
type Client struct {
	baseURL string
	http    *http.Client
	cookie  string
}

func NewClient(baseURL string, httpClient *http.Client, cookie string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, cookie: cookie}
}

// Factory builds a Client per player, forwarding the credential as the Cookie header.
func Factory(baseURL string, httpClient *http.Client) app.BackendFactory {
	return func(_ domain.Identity, credential string) app.Backend {
		return NewClient(baseURL, httpClient, credential)
	}
}

type generateBody struct {
	SubmissionID string            `json:"submissionId"`
	Error        string            `json:"error"`
	Aborted      bool              `json:"aborted"`
	Questions    []domain.Question `json:"questions"`
}

func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	form := url.Values{}
	form.Set("topic", req.Topic)
	form.Set("numberOfQuestions", strconv.Itoa(req.NumberOfQuestions))
	form.Set("submissionId", req.SubmissionID)

	var body generateBody
	status, err := c.post(ctx, generatePath, form, &body)
	if err != nil {
		return domain.GenerateResponse{}, err
	}
	resp := domain.GenerateResponse{
		SubmissionID: body.SubmissionID,
		OK:           ok(status),
		Error:        body.Error,
		Aborted:      body.Aborted,
	}
	if body.Questions != nil {
		resp.Trivia = &domain.Trivia{Questions: body.Questions}
	}
	return resp, nil
}

func (c *Client) Cancel(ctx context.Context, submissionID string) (domain.CancelResponse, error) {
	form := url.Values{}
	form.Set("submissionId", submissionID)

	var body domain.CancelResponse
	status, err := c.post(ctx, cancelPath, form, &body)
	if err != nil {
		return domain.CancelResponse{}, err
	}
	body.OK = ok(status)
	return body, nil
}

func (c *Client) Credits(ctx context.Context) (domain.Credits, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+creditsPath, nil)
	if err != nil {
		return domain.Credits{}, err
	}
	var credits domain.Credits
	status, err := c.do(req, &credits)
	if err != nil {
		return domain.Credits{}, err
	}
	if !ok(status) {
		return domain.Credits{}, fmt.Errorf("credits: unexpected status %d", status)
	}
	return credits, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// do decodes the JSON body whatever the status; error statuses still carry the submission id.
func (c *Client) do(req *http.Request, out interface{}) (int, error) {
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s (status %d): %w", req.URL.Path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
