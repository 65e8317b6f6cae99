package http

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
	"trivia-solo-service/internal/infra/memory"
)

const testSecret = "test-secret-test-secret-test-sec"

func newAPIServer(t *testing.T, gen app.TriviaGenerator, perMinute int) (*httptest.Server, *app.TriviaService) {
	t.Helper()
	service := app.NewTriviaService(gen, memory.NewUsageLedger(time.Hour), memory.NewTriviaStore(),
		app.Limits{Anon: 2, Registered: 10}, zap.NewNop())
	mux := http.NewServeMux()
	NewAPIHandler(service, NewIdentityGate(testSecret), perMinute, zap.NewNop()).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func newSessionClient(t *testing.T, server *httptest.Server) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar}
	resp, err := client.Post(server.URL+"/api/session/anon", "", nil)
	if err != nil {
		t.Fatalf("anon session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for a new anon session, got %d", resp.StatusCode)
	}
	return client
}

func postForm(t *testing.T, client *http.Client, u string, form url.Values, out interface{}) int {
	t.Helper()
	resp, err := client.PostForm(u, form)
	if err != nil {
		t.Fatalf("post %s: %v", u, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", u, err)
		}
	}
	return resp.StatusCode
}

func generateForm(id string) url.Values {
	return url.Values{"topic": {"space"}, "numberOfQuestions": {"3"}, "submissionId": {id}}
}

func TestAPIRequiresIdentity(t *testing.T) {
	server, _ := newAPIServer(t, memory.NewStaticTriviaGenerator(nil), 0)
	status := postForm(t, http.DefaultClient, server.URL+"/api/trivia/generate-solo", generateForm("s1"), nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", status)
	}
}

func TestAPIGenerateAndLimit(t *testing.T) {
	server, _ := newAPIServer(t, memory.NewStaticTriviaGenerator(nil), 0)
	client := newSessionClient(t, server)

	var body generateBody
	if status := postForm(t, client, server.URL+"/api/trivia/generate-solo", generateForm("s1"), &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", status, body)
	}
	if body.SubmissionID != "s1" || len(body.Questions) != 3 {
		t.Fatalf("expected 3 questions for s1, got %+v", body)
	}

	_ = postForm(t, client, server.URL+"/api/trivia/generate-solo", generateForm("s2"), nil)
	body = generateBody{}
	status := postForm(t, client, server.URL+"/api/trivia/generate-solo", generateForm("s3"), &body)
	if status != http.StatusTooManyRequests || body.Error != domain.CodeAnonLimitExceeded || body.SubmissionID != "s3" {
		t.Fatalf("expected anon limit for s3, got %d %+v", status, body)
	}

	resp, err := client.Get(server.URL + "/api/credits")
	if err != nil {
		t.Fatalf("credits: %v", err)
	}
	defer resp.Body.Close()
	var credits domain.Credits
	if err := json.NewDecoder(resp.Body).Decode(&credits); err != nil {
		t.Fatalf("decode credits: %v", err)
	}
	if credits.Used != 2 || credits.Remaining != 0 {
		t.Fatalf("unexpected credits %+v", credits)
	}
}

func TestAPIGenerateRejectsInvalidForm(t *testing.T) {
	server, _ := newAPIServer(t, memory.NewStaticTriviaGenerator(nil), 0)
	client := newSessionClient(t, server)

	var body generateBody
	form := url.Values{"topic": {""}, "numberOfQuestions": {"abc"}, "submissionId": {"s1"}}
	if status := postForm(t, client, server.URL+"/api/trivia/generate-solo", form, &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.SubmissionID != "s1" || body.Error != app.MsgInvalidRequest {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAPICancelAbortsGeneration(t *testing.T) {
	server, service := newAPIServer(t, memory.NewStaticTriviaGenerator(nil).WithDelay(time.Minute), 0)
	client := newSessionClient(t, server)

	done := make(chan generateBody, 1)
	go func() {
		var body generateBody
		postForm(t, client, server.URL+"/api/trivia/generate-solo", generateForm("s1"), &body)
		done <- body
	}()
	deadline := time.Now().Add(2 * time.Second)
	for service.InFlight() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	var ack domain.CancelResponse
	if status := postForm(t, client, server.URL+"/api/trivia/cancel", url.Values{"submissionId": {"s1"}}, &ack); status != http.StatusOK {
		t.Fatalf("expected 200 cancel ack, got %d", status)
	}
	if ack.SubmissionID != "s1" {
		t.Fatalf("expected ack for s1, got %+v", ack)
	}

	select {
	case body := <-done:
		if !body.Aborted || body.SubmissionID != "s1" || len(body.Questions) != 0 {
			t.Fatalf("expected aborted response, got %+v", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("generation not aborted")
	}
}

func TestAPIRateLimitsGenerate(t *testing.T) {
	server, _ := newAPIServer(t, memory.NewStaticTriviaGenerator(nil), 1)
	client := newSessionClient(t, server)

	_ = postForm(t, client, server.URL+"/api/trivia/generate-solo", generateForm("s1"), nil)
	var body generateBody
	status := postForm(t, client, server.URL+"/api/trivia/generate-solo", generateForm("s2"), &body)
	if status != http.StatusTooManyRequests || body.Error != msgTooManyRequests {
		t.Fatalf("expected rate limit, got %d %+v", status, body)
	}
}
