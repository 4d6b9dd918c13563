package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestNew_AutoDimension(t *testing.T) {
	t.Setenv("CROSSPOST_SERVICE_NAME", "crosspostd")
	initOnce.Do(func() {}) // Reset once
	serviceName = "crosspostd"

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("expected namespace TestNamespace, got %s", r.namespace)
	}
	if r.dimensions["Service"] != "crosspostd" {
		t.Errorf("expected Service dimension crosspostd, got %s", r.dimensions["Service"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	serviceName = "" // Clear for test isolation

	rec := New("Crosspost")
	rec.Dimension("Platform", "facebook")
	rec.Metric("PublishLatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("PublishCount", 1, UnitCount)
	rec.Property("storeId", "store-001")
	rec.Flush()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	if doc["Platform"] != "facebook" {
		t.Errorf("expected Platform=facebook, got %v", doc["Platform"])
	}
	if doc["PublishLatencyMs"] != 1234.5 {
		t.Errorf("expected PublishLatencyMs=1234.5, got %v", doc["PublishLatencyMs"])
	}
	if doc["storeId"] != "store-001" {
		t.Errorf("expected storeId=store-001, got %v", doc["storeId"])
	}
	if _, ok := doc["_aws"]; !ok {
		t.Error("expected _aws directive in EMF document")
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rec := New("Crosspost")
	rec.Property("onlyAProperty", "no metrics")
	rec.Flush()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.Len() != 0 {
		t.Errorf("expected no output for metric-less recorder, got %q", buf.String())
	}
}

func TestRecorder_Count(t *testing.T) {
	rec := New("Crosspost")
	rec.Count("DuplicateCount")

	if rec.values["DuplicateCount"] != float64(1) {
		t.Errorf("expected DuplicateCount value 1, got %v", rec.values["DuplicateCount"])
	}
	if rec.metrics["DuplicateCount"].Unit != UnitCount {
		t.Errorf("expected unit Count, got %s", rec.metrics["DuplicateCount"].Unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Crosspost").
		Dimension("Platform", "instagram").
		Metric("PollCount", 7, UnitCount).
		Property("containerId", "c-1")

	if rec.dimensions["Platform"] != "instagram" {
		t.Errorf("chaining lost dimension")
	}
	if rec.values["PollCount"] != float64(7) {
		t.Errorf("chaining lost metric")
	}
	if rec.properties["containerId"] != "c-1" {
		t.Errorf("chaining lost property")
	}
}
