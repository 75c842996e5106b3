//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"

	"github.com/driveclone/apiserver/config"
	"github.com/driveclone/apiserver/internal/db"
	"github.com/driveclone/apiserver/internal/server"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool, err := dockertest.NewPool("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to docker: %v\n", err)
		os.Exit(1)
	}

	var resources []*dockertest.Resource
	purge := func() {
		for _, r := range resources {
			_ = pool.Purge(r)
		}
	}

	postgres, err := runContainer(pool, &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env:        []string{"POSTGRES_USER=drive", "POSTGRES_PASSWORD=drive", "POSTGRES_DB=drive"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start postgres: %v\n", err)
		os.Exit(1)
	}
	resources = append(resources, postgres)

	minio, err := runContainer(pool, &dockertest.RunOptions{
		Repository: "minio/minio",
		Tag:        "latest",
		Cmd:        []string{"server", "/data"},
		Env:        []string{"MINIO_ROOT_USER=minioadmin", "MINIO_ROOT_PASSWORD=minioadmin"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start minio: %v\n", err)
		purge()
		os.Exit(1)
	}
	resources = append(resources, minio)

	setEnv(postgres.GetPort("5432/tcp"), minio.GetPort("9000/tcp"))
	cfg := config.LoadConfig()

	if err := pool.Retry(func() error {
		return db.MigrateUp(db.DSN(cfg), "")
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		purge()
		os.Exit(1)
	}

	var srv *server.Server
	if err := pool.Retry(func() error {
		srv, err = server.New(ctx, cfg, zerolog.Nop())
		return err
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		purge()
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		purge()
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	purge()
	os.Exit(code)
}

func TestSessionLifecycle(t *testing.T) {
	client := newClient(t)
	username := "user" + strconv.FormatInt(time.Now().UnixNano(), 36)
	password := "password123"

	if err := registerUser(client, username, password); err != nil {
		t.Fatalf("register user: %v", err)
	}

	status, _, err := postJSON(client, "/api/users/register", map[string]string{
		"username": strings.ToUpper(username),
		"email":    "other." + username + "@example.com",
		"password": password,
	})
	if err != nil {
		t.Fatalf("register duplicate: %v", err)
	}
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate username: expected 400, got %d", status)
	}

	status, _, err = postJSON(client, "/api/users/login", map[string]string{"username": username, "password": "wrongpass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", status)
	}

	status, body, err := postJSON(client, "/api/users/login", map[string]string{"username": username, "password": password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", status, body)
	}

	resp, err := client.Get(baseURL + "/api/users/check-auth")
	if err != nil {
		t.Fatalf("check-auth: %v", err)
	}
	var check struct {
		Authenticated bool `json:"authenticated"`
		User          struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	err = json.NewDecoder(resp.Body).Decode(&check)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("decode check-auth: %v", err)
	}
	if !check.Authenticated || check.User.Username != username {
		t.Fatalf("unexpected check-auth response: %+v", check)
	}

	filePath, err := uploadFile(client, "pixel.png", "image/png", []byte("\x89PNG\r\n\x1a\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(filePath, "uploads/") {
		t.Fatalf("unexpected file path: %q", filePath)
	}

	status, _, err = postJSON(client, "/api/users/logout", nil)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", status)
	}

	resp, err = client.Get(baseURL + "/api/users/check-auth")
	if err != nil {
		t.Fatalf("check-auth after logout: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("check-auth after logout: expected 401, got %d", resp.StatusCode)
	}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func registerUser(client *http.Client, username, password string) error {
	status, body, err := postJSON(client, "/api/users/register", map[string]string{
		"username": username,
		"email":    fmt.Sprintf("%s@example.com", username),
		"password": password,
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

func postJSON(client *http.Client, path string, payload any) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func uploadFile(client *http.Client, filename, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/files/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		FilePath string `json:"filePath"`
		FileURL  string `json:"fileURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.FileURL == "" {
		return "", fmt.Errorf("missing fileURL in upload response")
	}
	return parsed.FilePath, nil
}

func runContainer(pool *dockertest.Pool, opts *dockertest.RunOptions) (*dockertest.Resource, error) {
	return pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
}

func setEnv(postgresPort, minioPort string) {
	_ = os.Setenv("ENV", "test")
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", strconv.Itoa(serverPort))
	_ = os.Setenv("BCRYPT_COST", "4")
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", postgresPort)
	_ = os.Setenv("DB_USER", "drive")
	_ = os.Setenv("DB_PASSWORD", "drive")
	_ = os.Setenv("DB_NAME", "drive")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("DB_CONNECT_TRIES", "1")
	_ = os.Setenv("STORAGE_DRIVER", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:"+minioPort)
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "drive")
	_ = os.Setenv("MQ_DRIVER", "none")
	_ = os.Setenv("RATE_LIMIT_REQUESTS", "0")
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}
