package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.turnsTotal)
	assert.NotNil(t, collector.specialistRunsTotal)
	assert.NotNil(t, collector.onboardingTransitions)
	assert.NotNil(t, collector.brokerMessages)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/users/{id}", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/users/{id}", 404, 5*time.Millisecond, 0, 64)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/users/{id}", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/users/{id}", "4xx")))
}

func TestCollector_RecordTurn(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	collector.RecordTurn("message", "concatenate", "degraded", 200*time.Millisecond)
	collector.RecordTurn("hourly_checkin", "", "ok", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.turnsTotal.WithLabelValues("message", "concatenate", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.turnsTotal.WithLabelValues("hourly_checkin", "none", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.turnDuration))
}

func TestCollector_RecordSpecialist(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSpecialist("Planner", "outcome", "", 10*time.Millisecond)
	collector.RecordSpecialist("Developer Assistant", "failed", "SPECIALIST_TIMEOUT", 20*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.specialistRunsTotal.WithLabelValues("Developer Assistant", "failed", "SPECIALIST_TIMEOUT")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.specialistRunsTotal))
}

func TestCollector_OnboardingAndCredentials(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordOnboarding("github_setup", "google_setup", "skip")
	collector.RecordCredentialCheck("github", "missing")
	collector.RecordCredentialCheck("github", "missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.onboardingTransitions.WithLabelValues("github_setup", "google_setup", "skip")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.credentialChecks.WithLabelValues("github", "missing")))
}

func TestCollector_SchedulerBrokerWebsocket(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSchedulerFire("daily_welcome", "fired")
	collector.RecordSchedulerFire("daily_welcome", "duplicate")
	collector.RecordBrokerMessage("ack")
	collector.RecordBrokerMessage("poison")
	collector.WebsocketOpened()
	collector.WebsocketOpened()
	collector.WebsocketClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.schedulerFires.WithLabelValues("daily_welcome", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.brokerMessages.WithLabelValues("poison")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.websocketActive))
}

func TestCollector_CacheAndDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("redis")
	collector.RecordCacheMiss("redis")
	collector.RecordDBQuery("postgres", "SELECT", 20*time.Millisecond)
	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("redis")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.dbQueryDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordTurn("message", "first_result", "ok", time.Millisecond)
			collector.RecordSpecialist("Researcher", "outcome", "", time.Millisecond)
			collector.RecordCacheHit("redis")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.turnsTotal.WithLabelValues("message", "first_result", "ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("redis")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(0))
}
