package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_Constants_HaveExpectedStringValues(t *testing.T) {
	assert.Equal(t, RequestStatus("pending"), StatusPending)
	assert.Equal(t, RequestStatus("processed"), StatusProcessed)
	assert.Equal(t, RequestStatus("dropped"), StatusDropped)
	assert.Equal(t, RequestStatus("blocked"), StatusBlocked)
}

func TestNewRequest_DefaultsToPendingGet(t *testing.T) {
	req := NewRequest("req_1_0", 1, KindUser, "web")

	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/", req.URLPath)
	assert.Equal(t, int64(1), req.Tick)
	assert.True(t, req.IsRead())
	assert.Empty(t, req.Path)
}

func TestRequest_AddHop_LatencyNeverDecreases(t *testing.T) {
	// GIVEN a request that visited one service
	req := NewRequest("r", 0, KindBot, "crawler")
	req.AddHop("lb-1", 12)

	// WHEN a hop reports a negative latency
	req.AddHop("svc-2", -5)

	// THEN accumulated latency is unchanged and the hop is recorded as zero
	assert.Equal(t, 12, req.LatencyMs)
	assert.Equal(t, []Hop{{ServiceID: "lb-1", LatencyMs: 12}, {ServiceID: "svc-2", LatencyMs: 0}}, req.Path)
}

func TestRequest_CacheKey_IncludesQuery(t *testing.T) {
	req := NewRequest("r", 0, KindUser, "web")
	req.URLPath = "/api/products"
	assert.Equal(t, "/api/products", req.CacheKey())
	req.Query = "page=2"
	assert.Equal(t, "/api/products?page=2", req.CacheKey())
}

func TestRequest_String_IncludesStatus(t *testing.T) {
	req := Request{ID: "test-1", Status: StatusDropped}
	assert.Contains(t, req.String(), "dropped")
}
