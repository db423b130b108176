package orange

import (
	"testing"

	"github.com/oapi-lab/canteen/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func TestMapRemoteStatus(t *testing.T) {
	testCases := []struct {
		remote   string
		expected model.PaymentStatus
	}{
		{"SUCCESS", model.PaymentStatusCompleted},
		{"success", model.PaymentStatusCompleted},
		{"FAILED", model.PaymentStatusFailed},
		{"DECLINED", model.PaymentStatusFailed},
		{"CANCELLED", model.PaymentStatusCancelled},
		{"EXPIRED", model.PaymentStatusExpired},
		// 沒見過的狀態一律當處理中，等下一次對帳
		{"INITIATED", model.PaymentStatusProcessing},
		{"PENDING", model.PaymentStatusProcessing},
		{"", model.PaymentStatusProcessing},
	}

	for _, tc := range testCases {
		status, _ := MapRemoteStatus(tc.remote, "")
		require.Equal(t, tc.expected, status, "remote status %q", tc.remote)
	}
}

func TestMapRemoteStatusFailureReason(t *testing.T) {
	_, reason := MapRemoteStatus("FAILED", "insufficient balance")
	require.Equal(t, "insufficient balance", reason)

	_, reason = MapRemoteStatus("SUCCESS", "ok")
	require.Empty(t, reason, "成功不帶失敗原因")
}
