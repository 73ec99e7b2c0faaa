package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/restokit/pkg/notify"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func TestMulti_Notify(t *testing.T) {
	t.Parallel()

	n := notify.New(notify.KindTrialExpired, notify.TypeWarning, uuid.New(), uuid.Nil, "Trial ended", "")

	failing := &mockNotifier{}
	failing.On("Notify", mock.Anything, n).Return(errors.New("smtp down"))
	rec := &notify.Recorder{}

	var buf bytes.Buffer
	m := notify.NewMulti([]notify.Notifier{failing, rec},
		notify.WithMultiLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	require.NoError(t, m.Notify(context.Background(), n))

	failing.AssertExpectations(t)
	assert.Len(t, rec.Sent(), 1)
	assert.Contains(t, buf.String(), "smtp down")
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := notify.NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	tenant := uuid.New()
	n := notify.New(notify.KindSubscriptionExpired, notify.TypeWarning, tenant, uuid.Nil, "Subscription expired", "renew")
	require.NoError(t, l.Notify(context.Background(), n))

	assert.Contains(t, buf.String(), tenant.String())
	assert.Contains(t, buf.String(), string(notify.KindSubscriptionExpired))
}

func TestNotification_With(t *testing.T) {
	t.Parallel()

	base := notify.New(notify.KindPermissionGranted, notify.TypeInfo, uuid.New(), uuid.New(), "t", "m")
	withPerm := base.With("permission", "manage_branches")

	assert.Nil(t, base.Data)
	assert.Equal(t, "manage_branches", withPerm.Data["permission"])
}

func TestRecorder_OfKind(t *testing.T) {
	t.Parallel()

	rec := &notify.Recorder{}
	ctx := context.Background()
	_ = rec.Notify(ctx, notify.Notification{Kind: notify.KindTrialExpired})
	_ = rec.Notify(ctx, notify.Notification{Kind: notify.KindRoleAssigned})

	assert.Len(t, rec.OfKind(notify.KindTrialExpired), 1)
	assert.NoError(t, notify.NoOp{}.Notify(ctx, notify.Notification{}))
}
