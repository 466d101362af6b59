package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionErrorExtraction(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "errors array message first",
			payload:  `{"errors":[{"errorCode":"BAD_ISIN","errorMessage":"unknown instrument"}],"message":"outer"}`,
			wantCode: "BAD_ISIN",
			wantMsg:  "unknown instrument",
		},
		{
			name:     "errors array code second",
			payload:  `{"errors":[{"errorCode":"BAD_ISIN"}],"message":"outer"}`,
			wantCode: "BAD_ISIN",
			wantMsg:  "BAD_ISIN",
		},
		{
			name:    "legacy message third",
			payload: `{"message":"broker unavailable","errorMessage":"detail","errorCode":"CODE"}`,
			wantMsg: "broker unavailable",
		},
		{
			name:    "legacy errorMessage fourth",
			payload: `{"errorMessage":"detail","errorCode":"CODE"}`,
			wantMsg: "detail",
		},
		{
			name:    "legacy errorCode last",
			payload: `{"errorCode":"CODE"}`,
			wantMsg: "CODE",
		},
		{
			name:    "unparsable body kept verbatim",
			payload: `not json`,
			wantMsg: "not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := subscriptionError(7, json.RawMessage(tt.payload))
			assert.Equal(t, 7, err.ID)
			assert.Equal(t, tt.wantMsg, err.Message)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, err.Code)
			}
		})
	}
}

func TestSubscriptionErrorString(t *testing.T) {
	assert.Equal(t, "BAD_ISIN: unknown instrument", (&SubscriptionError{ID: 1, Code: "BAD_ISIN", Message: "unknown instrument"}).Error())
	assert.Equal(t, "BAD_ISIN", (&SubscriptionError{ID: 1, Code: "BAD_ISIN", Message: "BAD_ISIN"}).Error())
	assert.Equal(t, "subscription 3 failed", (&SubscriptionError{ID: 3}).Error())
}
