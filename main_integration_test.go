package main_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joho/godotenv"
)

const (
	testAppBinary         = "./feedr_test_app" // Name for the test binary
	testAppPort           = "8089"             // Port for the test server
	testServiceApiPortApi = "8091"             // Port for Service API run by API process
	testServiceApiPortBg  = "8092"             // Port for Service API run by BG process
	testAppURL            = "http://localhost:" + testAppPort
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
	testAdminCode         = "integration-admin-code"
)

// integrationEnabled reflects whether MONGO_URI_TEST is set; without it the
// tests in this file skip rather than fail.
var integrationEnabled bool

// TestMain manages the setup and teardown of the integration test environment.
func TestMain(m *testing.M) {
	godotenv.Load()

	mongoURI := os.Getenv("MONGO_URI_TEST")
	if mongoURI == "" {
		log.Println("MONGO_URI_TEST not set; skipping integration tests.")
		os.Exit(m.Run())
	}
	integrationEnabled = true

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	defer func() {
		log.Println("Integration Test Teardown: Cleaning up test binary...")
		_ = os.Remove(testAppBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Build successful: %s", testAppBinary)

	commonEnv := []string{
		"MONGO_URI=" + mongoURI,
		"MONGO_DB_NAME=feedr_integration_test",
		"REDIS_ADDR=" + redisAddr,
		"JWT_SECRET=integration-test-secret",
		"ADMIN_REGISTRATION_CODE=" + testAdminCode,
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"SMTP_FROM_ADDRESS=test@feedr.example.com",
	}

	// --- Start API Process ---
	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(os.Environ(), append(commonEnv,
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPortApi,
		"RATE_LIMIT_SOFT_BUCKET_SIZE=100",
		"RATE_LIMIT_SOFT_REFILL_RATE=100",
		"RATE_LIMIT_HARD_BUCKET_SIZE=200",
		"RATE_LIMIT_HARD_REFILL_RATE=200",
	)...)
	apiCmd.Stderr = os.Stderr
	apiCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting API process...")
	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: API process started (PID: %d)...", apiCmd.Process.Pid)

	// --- Start Background Worker Process ---
	bgCmd := exec.Command(testAppBinary, "-m", "bg")
	bgCmd.Env = append(os.Environ(), append(commonEnv,
		"SERVICE_API_PORT="+testServiceApiPortBg,
	)...)
	bgCmd.Stderr = os.Stderr
	bgCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting Background Worker process...")
	if err := bgCmd.Start(); err != nil {
		_ = apiCmd.Process.Kill()
		log.Printf("Failed to start Background Worker process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Background Worker process started (PID: %d)...", bgCmd.Process.Pid)

	defer func() {
		log.Println("Integration Test Teardown: Shutting down application processes...")
		log.Println("Sending SIGTERM to Background Worker...")
		if processErr := bgCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to BG Worker: %v. Killing.", processErr)
			_ = bgCmd.Process.Kill()
		} else {
			_, waitErr := bgCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for BG Worker exit: %v", waitErr)
			}
		}
		log.Println("Sending SIGTERM to API Process...")
		if processErr := apiCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to API Process: %v. Killing.", processErr)
			_ = apiCmd.Process.Kill()
		} else {
			_, waitErr := apiCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for API Process exit: %v", waitErr)
			}
		}
		log.Println("Integration Test Teardown: Application processes stopped.")
	}()

	// Wait for the API application to be ready by polling the ping endpoint
	log.Printf("Integration Test Setup: Waiting for API application to become ready at %s...", pingEndpoint)
	startTime := time.Now()
	ready := false
	for time.Since(startTime) < startupTimeout {
		resp, err := http.Get(pingEndpoint)
		if err == nil && resp.StatusCode == http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if string(bodyBytes) == "pong" {
				log.Println("Integration Test Setup: Application is ready!")
				ready = true
				break
			}
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(200 * time.Millisecond)
	}

	if !ready {
		log.Printf("Application failed to start within %v", startupTimeout)
		os.Exit(1)
	}

	log.Println("Integration Test Setup: Pausing briefly for background worker startup...")
	time.Sleep(2 * time.Second)

	log.Println("Integration Test Setup: Running tests...")
	exitCode := m.Run()
	log.Printf("Integration Test Teardown: Tests finished with exit code %d.", exitCode)
	// Let TestMain return normally so the deferred teardown runs.
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if !integrationEnabled {
		t.Skip("MONGO_URI_TEST not set")
	}
}

// doRequest performs a JSON request against the running API process.
func doRequest(t *testing.T, method, path, jwtToken string, body interface{}) (map[string]interface{}, *http.Response) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "Failed to marshal request payload")
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequest(method, testAppURL+path, bodyReader)
	require.NoError(t, err, "Failed to create HTTP request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if jwtToken != "" {
		req.Header.Set("Authorization", "Bearer "+jwtToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "Request to %s should not fail", path)
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "Failed to read response body")

	var respBody map[string]interface{}
	if unmarshalErr := json.Unmarshal(respBodyBytes, &respBody); unmarshalErr != nil {
		respBody = map[string]interface{}{"raw_body": string(respBodyBytes)}
	}
	return respBody, resp
}

// callServiceAPI invokes a method on the service control API.
func callServiceAPI(t *testing.T, method string, args []interface{}) (map[string]interface{}, *http.Response, error) {
	t.Helper()
	payload := map[string]interface{}{
		"method":    method,
		"arguments": args,
	}
	bodyBytes, err := json.Marshal(payload)
	require.NoError(t, err, "Failed to marshal service API payload")

	resp, err := http.Post(testServiceApiURL+"/api", "application/json", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, resp, err
	}
	defer resp.Body.Close()

	respBodyBytes, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr, "Failed to read service API response body")

	var respBody map[string]interface{}
	if unmarshalErr := json.Unmarshal(respBodyBytes, &respBody); unmarshalErr != nil {
		respBody = map[string]interface{}{"raw_body": string(respBodyBytes)}
	}
	return respBody, resp, nil
}

// getEmailFromServiceAPI polls the service API for a mock email of the given
// kind sent to the given address.
func getEmailFromServiceAPI(t *testing.T, kind, emailAddr string) map[string]interface{} {
	t.Helper()
	var emailData map[string]interface{}
	found := false
	pollTimeout := time.After(10 * time.Second)
	pollTicker := time.NewTicker(500 * time.Millisecond)
	defer pollTicker.Stop()

	log.Printf("Polling Service API for email: Kind=%s, Email=%s", kind, emailAddr)

	for !found {
		select {
		case <-pollTimeout:
			t.Fatalf("Timeout waiting for email via Service API (Kind: %s, Email: %s)", kind, emailAddr)
		case <-pollTicker.C:
			respBody, resp, err := callServiceAPI(t, "getTestEmail", []interface{}{kind, emailAddr})
			if err != nil {
				log.Printf("Error calling getTestEmail Service API: %v", err)
				continue
			}
			if resp.StatusCode == http.StatusOK {
				success, _ := respBody["success"].(bool)
				if success {
					actualEmailPayload, ok := respBody["data"].(map[string]interface{})
					if ok {
						log.Printf("Found email via Service API: %+v", actualEmailPayload)
						emailData = actualEmailPayload
						found = true
					} else {
						log.Printf("Service API returned success but 'data' field was not a map: %+v", respBody["data"])
					}
				}
			} else if resp.StatusCode != http.StatusNotFound {
				log.Printf("getTestEmail returned status %d. Polling...", resp.StatusCode)
			}
		}
	}
	require.True(t, found, "Failed to find email via Service API")
	return emailData
}

// registerUser signs up a user and returns their JWT and user payload.
func registerUser(t *testing.T, name, email, role, adminCode string) (string, map[string]interface{}) {
	t.Helper()
	body := map[string]interface{}{
		"name":     name,
		"email":    email,
		"mobile":   "9876543210",
		"password": "StrongP@ssw0rd1",
		"role":     role,
		"address": map[string]interface{}{
			"street1": "14 Link Road",
			"city":    "Chennai",
			"pincode": "600042",
		},
	}
	if adminCode != "" {
		body["admin_code"] = adminCode
	}
	respBody, resp := doRequest(t, http.MethodPost, "/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register %s: %+v", email, respBody)
	token, _ := respBody["token"].(string)
	require.NotEmpty(t, token, "register %s: missing token", email)
	user, ok := respBody["user"].(map[string]interface{})
	require.True(t, ok, "register %s: missing user payload", email)
	return token, user
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@example.com", prefix, time.Now().UnixNano())
}

// TestIntegration_Ping tests the /v1/ping endpoint of the running application.
func TestIntegration_Ping(t *testing.T) {
	requireIntegration(t)

	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err, "Request to %s should not fail", pingEndpoint)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	bodyBytes, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, "pong", string(bodyBytes))
}

// TestIntegration_RegisterAndLogin covers sign-up, the welcome email, and a
// subsequent login with the same credentials.
func TestIntegration_RegisterAndLogin(t *testing.T) {
	requireIntegration(t)

	email := uniqueEmail("donor")
	token, user := registerUser(t, "Asha", email, "donor", "")
	assert.Equal(t, "donor", user["role"])

	// The background worker should have stored the welcome email.
	emailData := getEmailFromServiceAPI(t, "welcome", email)
	subject, _ := emailData["subject"].(string)
	assert.Contains(t, subject, "Welcome")

	// Login with the registered credentials.
	loginBody, loginResp := doRequest(t, http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": "StrongP@ssw0rd1",
	})
	require.Equal(t, http.StatusOK, loginResp.StatusCode, "%+v", loginBody)
	assert.NotEmpty(t, loginBody["token"])

	// The token works against an authenticated endpoint.
	profileBody, profileResp := doRequest(t, http.MethodGet, "/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, profileResp.StatusCode, "%+v", profileBody)
}

// TestIntegration_ListingLifecycle walks the full donate-browse-claim flow
// across the API and background worker processes.
func TestIntegration_ListingLifecycle(t *testing.T) {
	requireIntegration(t)

	donorEmail := uniqueEmail("donor")
	donorToken, _ := registerUser(t, "Asha", donorEmail, "donor", "")
	receiverEmail := uniqueEmail("receiver")
	receiverToken, _ := registerUser(t, "Ravi", receiverEmail, "receiver", "")

	// Donor creates a listing near central Chennai.
	createBody, createResp := doRequest(t, http.MethodPost, "/v1/listings", donorToken, map[string]interface{}{
		"name":         "Vegetable biryani",
		"description":  "Fresh vegetable biryani, about twenty servings",
		"quantity":     20,
		"unit":         "servings",
		"expiry_hours": 3,
		"image_url":    "https://img.example.com/biryani.jpg",
		"location":     map[string]interface{}{"latitude": 13.0827, "longitude": 80.2707},
	})
	require.Equal(t, http.StatusCreated, createResp.StatusCode, "%+v", createBody)
	listingID, _ := createBody["id"].(string)
	require.NotEmpty(t, listingID, "create listing: missing id")

	// Receiver browses nearby and finds the listing ranked with a distance.
	browseBody, browseResp := doRequest(t, http.MethodGet, "/v1/listings?lat=13.05&lon=80.25&q=biryani", receiverToken, nil)
	require.Equal(t, http.StatusOK, browseResp.StatusCode, "%+v", browseBody)
	results, ok := browseBody["data"].([]interface{})
	require.True(t, ok, "browse response data is not a list: %+v", browseBody)
	foundListing := false
	for _, raw := range results {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if entry["id"] == listingID {
			foundListing = true
			assert.NotNil(t, entry["distance_km"], "ranked listing should carry a distance")
		}
	}
	require.True(t, foundListing, "created listing not found in browse results")

	// Receiver claims; the donor earns the claim bonus.
	claimBody, claimResp := doRequest(t, http.MethodPost, "/v1/listings/"+listingID+"/claim", receiverToken, nil)
	require.Equal(t, http.StatusOK, claimResp.StatusCode, "%+v", claimBody)
	donorPoints, _ := claimBody["donor_points"].(float64)
	assert.Equal(t, float64(15), donorPoints, "donor should hold listing + claim points")

	// The donor gets the claim notification with the receiver's details.
	emailData := getEmailFromServiceAPI(t, "claim", donorEmail)
	body, _ := emailData["body"].(string)
	assert.Contains(t, body, "Ravi")
	assert.Contains(t, body, "Vegetable biryani")

	// A second claim is rejected.
	secondBody, secondResp := doRequest(t, http.MethodPost, "/v1/listings/"+listingID+"/claim", receiverToken, nil)
	assert.Equal(t, http.StatusConflict, secondResp.StatusCode, "%+v", secondBody)

	// The receiver dashboard now lists the claim.
	dashBody, dashResp := doRequest(t, http.MethodGet, "/v1/dashboard", receiverToken, nil)
	require.Equal(t, http.StatusOK, dashResp.StatusCode, "%+v", dashBody)
	claims, ok := dashBody["my_claims"].([]interface{})
	require.True(t, ok, "receiver dashboard missing my_claims: %+v", dashBody)
	foundClaim := false
	for _, raw := range claims {
		entry, ok := raw.(map[string]interface{})
		if ok && entry["id"] == listingID {
			foundClaim = true
		}
	}
	assert.True(t, foundClaim, "claimed listing not present in receiver dashboard")
}

// TestIntegration_AdminStats registers an admin with the configured code and
// reads the aggregate stats.
func TestIntegration_AdminStats(t *testing.T) {
	requireIntegration(t)

	adminToken, _ := registerUser(t, "Meera", uniqueEmail("admin"), "admin", testAdminCode)

	statsBody, statsResp := doRequest(t, http.MethodGet, "/v1/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, statsResp.StatusCode, "%+v", statsBody)

	totalUsers, _ := statsBody["total_users"].(float64)
	assert.GreaterOrEqual(t, totalUsers, float64(1), "stats should count registered users")
	_, hasRate := statsBody["success_rate_pct"]
	assert.True(t, hasRate, "stats should include the success rate")

	// A non-admin is rejected.
	donorToken, _ := registerUser(t, "Asha", uniqueEmail("donor"), "donor", "")
	_, forbiddenResp := doRequest(t, http.MethodGet, "/v1/admin/stats", donorToken, nil)
	assert.Equal(t, http.StatusForbidden, forbiddenResp.StatusCode)
}
