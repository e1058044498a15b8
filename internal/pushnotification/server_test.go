package pushnotification

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
	"github.com/kazz187/agentguild/internal/config"
	"github.com/kazz187/agentguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/storage"
)

func TestRegisterPushSubscriptionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repositoryimpl.NewYAMLRepository(storage.NewMemoryStorage())
	s := NewServer(&config.VAPIDEnv{}, repo)

	register := func(auth string) error {
		_, err := s.RegisterPushSubscription(ctx, connect.NewRequest(&agentguildv1.RegisterPushSubscriptionRequest{
			Endpoint:  "https://push.example/1",
			P256dhKey: "key",
			AuthKey:   auth,
		}))
		return err
	}
	require.NoError(t, register("a"))
	require.NoError(t, register("b"))

	subs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "b", subs[0].AuthKey)

	_, err = s.UnregisterPushSubscription(ctx, connect.NewRequest(&agentguildv1.UnregisterPushSubscriptionRequest{Endpoint: "https://push.example/1"}))
	require.NoError(t, err)
	subs, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRegisterPushSubscriptionValidates(t *testing.T) {
	s := NewServer(&config.VAPIDEnv{}, repositoryimpl.NewYAMLRepository(storage.NewMemoryStorage()))
	_, err := s.RegisterPushSubscription(context.Background(), connect.NewRequest(&agentguildv1.RegisterPushSubscriptionRequest{}))
	assert.True(t, cerr.IsKind(err, cerr.KindValidation))

	_, err = s.GetVapidPublicKey(context.Background(), connect.NewRequest(&agentguildv1.Empty{}))
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}
