//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"

	accountsgrpc "github.com/vibast-solutions/ms-go-accounts/app/grpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultHTTPBase = "http://localhost:8000"
	defaultGRPCAddr = "localhost:9090"
)

type envelope struct {
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Error      string          `json:"error"`
	Success    bool            `json:"success"`
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(t *testing.T) *httpClient {
	t.Helper()

	base := os.Getenv("ACCOUNTS_HTTP_URL")
	if base == "" {
		base = defaultHTTPBase
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &httpClient{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 10 * time.Second, Jar: jar},
	}
}

func (c *httpClient) do(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("decode response %q: %v", body, err)
		}
	}
	return resp, env
}

func (c *httpClient) sendJSON(t *testing.T, method, path string, body any) (*http.Response, envelope) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json marshal failed: %v", err)
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(t, req)
}

func (c *httpClient) register(t *testing.T, fields map[string]string, withAvatar bool) (*http.Response, envelope) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if withAvatar {
		part, err := w.CreateFormFile("avatar", "avatar.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if err = png.Encode(part, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
			t.Fatalf("encode avatar: %v", err)
		}
	}
	_ = w.Close()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/users/register", &body)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(t, req)
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/api/v1/healthcheck")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func TestAccountsE2E(t *testing.T) {
	client := newHTTPClient(t)
	grpcAddr := os.Getenv("ACCOUNTS_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = defaultGRPCAddr
	}

	if err := waitForHTTP(client.baseURL, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	suffix := time.Now().UnixNano()
	state := struct {
		username     string
		email        string
		password     string
		newPassword  string
		accessToken  string
		refreshToken string
	}{
		username:    fmt.Sprintf("e2e%d", suffix),
		email:       fmt.Sprintf("e2e+%d@example.com", suffix),
		password:    "secret1",
		newPassword: "secret2",
	}
	fields := map[string]string{
		"fullname": "E2E User",
		"email":    state.email,
		"username": state.username,
		"password": state.password,
	}

	abort := false
	fail := func(t *testing.T, format string, args ...any) {
		abort = true
		t.Fatalf(format, args...)
	}
	step := func(name string, fn func(t *testing.T)) {
		t.Run(name, func(t *testing.T) {
			if abort {
				t.Skip("previous step failed")
			}
			fn(t)
		})
	}

	step("RegisterWithoutAvatar", func(t *testing.T) {
		resp, _ := client.register(t, fields, false)
		if resp.StatusCode != http.StatusBadRequest {
			fail(t, "expected 400 without avatar, got %d", resp.StatusCode)
		}
	})

	step("Register", func(t *testing.T) {
		resp, env := client.register(t, fields, true)
		if resp.StatusCode != http.StatusCreated {
			fail(t, "register status: %d error: %s", resp.StatusCode, env.Error)
		}
		if bytes.Contains(env.Data, []byte("password")) || bytes.Contains(env.Data, []byte("refreshToken")) {
			fail(t, "register response leaks secrets: %s", env.Data)
		}
	})

	step("RegisterDuplicate", func(t *testing.T) {
		resp, _ := client.register(t, fields, true)
		if resp.StatusCode != http.StatusConflict {
			fail(t, "expected duplicate register conflict, got %d", resp.StatusCode)
		}
	})

	step("LoginWrongPassword", func(t *testing.T) {
		resp, _ := client.sendJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
			"email":    state.email,
			"password": "wrong",
		})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected 401, got %d", resp.StatusCode)
		}
	})

	step("Login", func(t *testing.T) {
		resp, env := client.sendJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
			"email":    state.email,
			"password": state.password,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "login status: %d error: %s", resp.StatusCode, env.Error)
		}
		var data struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" || data.RefreshToken == "" {
			fail(t, "login returned no tokens: %s", env.Data)
		}
		state.accessToken = data.AccessToken
		state.refreshToken = data.RefreshToken
	})

	step("CurrentUserFromCookie", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, client.baseURL+"/api/v1/users/current-user", nil)
		resp, env := client.do(t, req)
		if resp.StatusCode != http.StatusOK {
			fail(t, "current user status: %d error: %s", resp.StatusCode, env.Error)
		}
	})

	step("GRPCValidateAndCurrentUser", func(t *testing.T) {
		conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			fail(t, "grpc dial: %v", err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		accounts := accountsgrpc.NewAccountServiceClient(conn)
		claims, err := accounts.ValidateToken(ctx, state.accessToken)
		if err != nil || claims.AsMap()["valid"] != true {
			fail(t, "validate token: %v %v", err, claims)
		}

		if _, err = accounts.CurrentUser(ctx); status.Code(err) != codes.Unauthenticated {
			fail(t, "expected Unauthenticated without bearer, got %v", err)
		}

		authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+state.accessToken)
		user, err := accounts.CurrentUser(authed)
		if err != nil || user.AsMap()["username"] != state.username {
			fail(t, "current user over grpc: %v %v", err, user)
		}
	})

	step("RefreshRotates", func(t *testing.T) {
		resp, env := client.sendJSON(t, http.MethodPost, "/api/v1/users/refresh-token", map[string]string{})
		if resp.StatusCode != http.StatusOK {
			fail(t, "refresh status: %d error: %s", resp.StatusCode, env.Error)
		}

		stale := &http.Client{Timeout: 10 * time.Second}
		data, _ := json.Marshal(map[string]string{"refreshToken": state.refreshToken})
		req, _ := http.NewRequest(http.MethodPost, client.baseURL+"/api/v1/users/refresh-token", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		staleResp, err := stale.Do(req)
		if err != nil {
			fail(t, "stale refresh request: %v", err)
		}
		staleResp.Body.Close()
		if staleResp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected consumed refresh token to be rejected with 401, got %d", staleResp.StatusCode)
		}
	})

	step("ChangePassword", func(t *testing.T) {
		resp, env := client.sendJSON(t, http.MethodPost, "/api/v1/users/change-password", map[string]string{
			"old_password": state.password,
			"new_password": state.newPassword,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "change password status: %d error: %s", resp.StatusCode, env.Error)
		}
	})

	step("LoginWithNewPasswordAndLogout", func(t *testing.T) {
		resp, env := client.sendJSON(t, http.MethodPost, "/api/v1/users/login", map[string]string{
			"email":    state.email,
			"password": state.newPassword,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "login status: %d error: %s", resp.StatusCode, env.Error)
		}

		resp, env = client.sendJSON(t, http.MethodPost, "/api/v1/users/logout", map[string]string{})
		if resp.StatusCode != http.StatusOK || env.Message != "User logged out" {
			fail(t, "logout status: %d message: %q", resp.StatusCode, env.Message)
		}

		req, _ := http.NewRequest(http.MethodGet, client.baseURL+"/api/v1/users/current-user", nil)
		resp, _ = client.do(t, req)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected 401 after logout, got %d", resp.StatusCode)
		}
	})
}
