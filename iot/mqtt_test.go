package iot

import (
	"testing"

	"github.com/drishti/backend/models"
)

func TestTopic(t *testing.T) {
	tests := []struct {
		scope, camera, want string
	}{
		{models.GlobalIoTScope, "", "iot_status/global_command/status"},
		{models.GlobalIoTScope, "cam-1", "iot_status/global_command/status"},
		{"ev1", "cam-1", "iot_status/ev1/cam-1/status"},
	}
	for _, tt := range tests {
		if got := Topic(tt.scope, tt.camera); got != tt.want {
			t.Errorf("Topic(%q, %q) = %s, want %s", tt.scope, tt.camera, got, tt.want)
		}
	}
}
