package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Comcast/tuplescript/core"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreListener(t *testing.T) {
	before := testutil.ToFloat64(storeWrites.WithLabelValues("set"))
	StoreListener{}.Changed(core.Event{Kind: core.EventSet, Seq: 42})
	assert.Equal(t, before+1, testutil.ToFloat64(storeWrites.WithLabelValues("set")))
	assert.Equal(t, float64(42), testutil.ToFloat64(storeSeq))
}

func TestEventDropped(t *testing.T) {
	dropped := testutil.ToFloat64(subsDropped)
	episodes := testutil.ToFloat64(subsOverflows)
	EventDropped(true)
	EventDropped(false)
	EventDropped(false)
	assert.Equal(t, dropped+3, testutil.ToFloat64(subsDropped))
	assert.Equal(t, episodes+1, testutil.ToFloat64(subsOverflows))
}

func TestHandler(t *testing.T) {
	TaskSpawned()
	TaskEntered("running", false)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "tuplescript_sched_task_transitions_total"), body)
	assert.True(t, strings.Contains(body, "tuplescript_sched_tasks_live"))
}
