package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignTask_Validate(t *testing.T) {
	msgs := []MessageTask{{Recipient: "+254700000001", TemplateText: "hi"}}

	tests := []struct {
		name    string
		task    CampaignTask
		wantErr string
	}{
		{
			name:    "no messages",
			task:    CampaignTask{Strategy: StrategySingle, ChannelID: "a"},
			wantErr: "campaign has no messages",
		},
		{
			name:    "missing recipient",
			task:    CampaignTask{Messages: []MessageTask{{}}, Strategy: StrategySingle, ChannelID: "a"},
			wantErr: "message 0 has no recipient",
		},
		{
			name:    "single without channel",
			task:    CampaignTask{Messages: msgs, Strategy: StrategySingle},
			wantErr: "single strategy requires channel_id",
		},
		{
			name:    "rotational without channels",
			task:    CampaignTask{Messages: msgs, Strategy: StrategyRotational},
			wantErr: "rotational strategy requires at least one channel",
		},
		{
			name:    "unknown strategy",
			task:    CampaignTask{Messages: msgs, Strategy: "broadcast"},
			wantErr: "invalid strategy: must be 'single' or 'rotational'",
		},
		{
			name: "duplicate id",
			task: CampaignTask{
				Messages:  []MessageTask{{Recipient: "a"}, {Recipient: "b", ID: "msg-0"}},
				Strategy:  StrategySingle,
				ChannelID: "a",
			},
			wantErr: `message 1 reuses id "msg-0" of message 0`,
		},
		{
			name: "negative pacing",
			task: CampaignTask{
				Messages:  msgs,
				Strategy:  StrategySingle,
				ChannelID: "a",
				Pacing:    &PacingOverrides{DailyLimit: 10, LongPauseMaxSeconds: -1},
			},
			wantErr: "pacing overrides must not be negative",
		},
		{
			name: "valid pacing",
			task: CampaignTask{
				Messages:  msgs,
				Strategy:  StrategySingle,
				ChannelID: "a",
				Pacing:    &PacingOverrides{DailyLimit: 10},
			},
		},
		{
			name: "valid rotational",
			task: CampaignTask{Messages: msgs, Strategy: StrategyRotational, Channels: []string{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestCampaignState_IsTerminal(t *testing.T) {
	assert.False(t, CampaignStateIdle.IsTerminal())
	assert.False(t, CampaignStateRunning.IsTerminal())
	assert.False(t, CampaignStatePaused.IsTerminal())
	assert.True(t, CampaignStateCompleted.IsTerminal())
	assert.True(t, CampaignStateStopped.IsTerminal())
	assert.True(t, CampaignStateFailed.IsTerminal())
}

func TestMessageTask_MessageID(t *testing.T) {
	assert.Equal(t, "abc", MessageTask{ID: "abc"}.MessageID(3))
	assert.Equal(t, "msg-3", MessageTask{}.MessageID(3))
}
