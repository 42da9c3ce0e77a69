package helpers

import (
	"io/ioutil"
	"os"
	"path"
	"reflect"
	"testing"
	"time"
)

func TestApplyEnvironment(t *testing.T) {
	conf := DefaultConfig()
	err := ApplyEnvironment(conf, []string{
		"NAMESPACE=batch-ns",
		"CRONJOB_NAME=demo",
		"START_POD_TIMEOUT_SECONDS=30",
		"LOG_STREAM_REQUEST_TIMEOUT_SECONDS=5",
		"CORS_ALLOWED_ORIGINS=https://a.example.com, https://b.example.com,",
		"REDIS_DB=3",
		"HTTPAUTH_USERNAME=admin",
		"HTTPAUTH_PASSWORD=secret",
		"UNRELATED=value=with=equals",
	})
	if err != nil {
		t.Fatalf("ApplyEnvironment failed unexpectedly: %s", err)
	}

	if conf.Namespace != "batch-ns" {
		t.Errorf("expected namespace batch-ns, got %s", conf.Namespace)
	}
	if conf.CronJobName != "demo" {
		t.Errorf("expected cronjob name demo, got %s", conf.CronJobName)
	}
	if conf.StartPodTimeout() != 30*time.Second {
		t.Errorf("expected start timeout 30s, got %s", conf.StartPodTimeout())
	}
	if conf.LogStreamRequestTimeout() != 5*time.Second {
		t.Errorf("expected log stream timeout 5s, got %s", conf.LogStreamRequestTimeout())
	}
	if conf.Redis.DBNum != 3 {
		t.Errorf("expected redis db 3, got %d", conf.Redis.DBNum)
	}
	if !conf.HttpAuth.Enabled() {
		t.Error("expected http auth to be enabled")
	}
	expectedOrigins := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(conf.CorsAllowedOrigins, expectedOrigins) {
		t.Errorf("expected origins %v, got %v", expectedOrigins, conf.CorsAllowedOrigins)
	}
	//untouched values keep their defaults
	if conf.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", conf.Port)
	}
	if conf.TerminationTimeoutSeconds != 300 {
		t.Errorf("expected default termination timeout 300, got %d", conf.TerminationTimeoutSeconds)
	}
}

func TestApplyEnvironment_invalidNumber(t *testing.T) {
	conf := DefaultConfig()
	err := ApplyEnvironment(conf, []string{"START_POD_TIMEOUT_SECONDS=soon"})
	if err == nil {
		t.Error("ApplyEnvironment should have rejected a non-numeric timeout")
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	if !reflect.DeepEqual(ParseAllowedOrigins(" * "), []string{"*"}) {
		t.Error("a bare wildcard should be kept as a wildcard")
	}
	if len(ParseAllowedOrigins(" , ")) != 0 {
		t.Error("empty entries should be dropped")
	}
}

func TestReadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "jobpanel-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	configPath := path.Join(dir, "serverconfig.yaml")
	content := `
namespace: from-file
cronjobName: nightly
redis:
  address: localhost:6379
httpAuth:
  realm: panel
`
	if writeErr := ioutil.WriteFile(configPath, []byte(content), 0644); writeErr != nil {
		t.Fatal(writeErr)
	}

	conf, readErr := ReadConfig(configPath)
	if readErr != nil {
		t.Fatalf("ReadConfig failed unexpectedly: %s", readErr)
	}
	if conf.Namespace != "from-file" || conf.CronJobName != "nightly" {
		t.Errorf("file values were not applied: %s / %s", conf.Namespace, conf.CronJobName)
	}
	if conf.Redis.Address != "localhost:6379" {
		t.Errorf("expected redis address from file, got %s", conf.Redis.Address)
	}
	if conf.HttpAuth.Realm != "panel" {
		t.Errorf("expected realm from file, got %s", conf.HttpAuth.Realm)
	}
	if conf.StartPodTimeoutSeconds != 120 {
		t.Errorf("defaults should survive a partial file, got timeout %d", conf.StartPodTimeoutSeconds)
	}
}

func TestReadConfig_missing(t *testing.T) {
	_, err := ReadConfig("/nonexistent/serverconfig.yaml")
	if err == nil {
		t.Error("ReadConfig should fail for a missing file")
	}
}
