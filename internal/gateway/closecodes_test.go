package gateway

import "testing"

func TestClassifyClose(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantAction closeAction
		wantErr    bool
	}{
		{"clean close reconnects", 1000, actionReconnect, false},
		{"abnormal closure reconnects", 1006, actionReconnect, true},
		{"not authenticated reconnects", 4003, actionReconnect, true},
		{"authentication failed is fatal", 4004, actionFatal, true},
		{"invalid shard is fatal", 4010, actionFatal, true},
		{"too many guilds is fatal", 4011, actionFatal, true},
		{"invalid session drops session", 4006, actionReconnectDropSession, true},
		{"session no longer valid drops session", 4009, actionReconnectDropSession, true},
		{"invalid seq drops seq only", 4007, actionReconnectDropSeq, true},
		{"rate limited reconnects", 4008, actionReconnect, true},
		{"unknown code with reason reconnects and reports it", 4999, actionReconnect, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := ""
			if tt.name == "unknown code with reason reconnects and reports it" {
				reason = "custom close"
			}
			v := classifyClose(tt.code, reason)
			if v.action != tt.wantAction {
				t.Errorf("classifyClose(%d) action = %v, want %v", tt.code, v.action, tt.wantAction)
			}
			hasErr := v.err != nil
			wantErr := tt.wantErr || reason != ""
			if hasErr != wantErr {
				t.Errorf("classifyClose(%d) err presence = %v, want %v", tt.code, hasErr, wantErr)
			}
		})
	}
}

func TestClassifyCloseCleanWithoutReasonHasNoError(t *testing.T) {
	v := classifyClose(1000, "")
	if v.err != nil {
		t.Errorf("expected nil error for clean close, got %v", v.err)
	}
	if v.action != actionReconnect {
		t.Errorf("expected actionReconnect, got %v", v.action)
	}
}
