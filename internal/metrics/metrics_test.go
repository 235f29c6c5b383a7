package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"bulksender/internal/models"
)

func TestRecorder_MessageProcessed(t *testing.T) {
	r := NewRecorder()

	sent := MessagesProcessed.WithLabelValues("s1", "sent")
	failed := MessagesProcessed.WithLabelValues("none", "failed")
	beforeSent := testutil.ToFloat64(sent)
	beforeFailed := testutil.ToFloat64(failed)

	r.MessageProcessed("camp-1", "s1", models.MessageStatusSent, 120*time.Millisecond)
	r.MessageProcessed("camp-1", "s1", models.MessageStatusSent, 80*time.Millisecond)
	r.MessageProcessed("camp-1", "", models.MessageStatusFailed, 0)

	assert.Equal(t, beforeSent+2, testutil.ToFloat64(sent))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestRecorder_LongPause(t *testing.T) {
	before := testutil.ToFloat64(LongPauses)

	NewRecorder().LongPause("camp-1", 2*time.Minute)

	assert.Equal(t, before+1, testutil.ToFloat64(LongPauses))
}

func TestRecordEvent(t *testing.T) {
	counter := CampaignEvents.WithLabelValues(string(models.EventPaused))
	before := testutil.ToFloat64(counter)

	RecordEvent(models.Event{Type: models.EventPaused, CampaignID: "camp-1"})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
