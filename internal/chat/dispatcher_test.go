package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"whisper/internal/mocks"
	"whisper/internal/models"
	"whisper/internal/repository"
	"whisper/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type dispatcherFixture struct {
	users      *mocks.MockUserRepository
	store      *mocks.MockMessageStore
	registry   *Registry
	dispatcher *Dispatcher
	alice, bob uuid.UUID
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	ctrl := gomock.NewController(t)
	f := &dispatcherFixture{
		users:    mocks.NewMockUserRepository(ctrl),
		store:    mocks.NewMockMessageStore(ctrl),
		registry: NewRegistry(),
		alice:    uuid.New(),
		bob:      uuid.New(),
	}
	f.dispatcher = NewDispatcher(f.users, f.store, f.registry, time.Second, zap.NewNop())
	return f
}

func persisted(in models.NewMessage) *models.Message {
	return &models.Message{
		ID:          uuid.New(),
		SenderID:    in.SenderID,
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		Attachments: in.Attachments,
		IsAnonymous: in.IsAnonymous,
		CreatedAt:   time.Now().UTC(),
	}
}

func Test_Send_Empty_Message_Fails_Validation(t *testing.T) {
	for _, anonymous := range []bool{true, false} {
		req := require.New(t)
		f := newDispatcherFixture(t)

		_, err := f.dispatcher.Send(context.Background(), models.NewMessage{
			SenderID:    f.alice,
			ReceiverID:  f.bob,
			Content:     "   \n",
			Attachments: []string{"", " "},
			IsAnonymous: anonymous,
		})

		req.ErrorIs(err, ErrValidation)
	}
}

func Test_Send_Rejects_Messages_Over_Limits(t *testing.T) {
	tooMany := make([]string, 6)
	for i := range tooMany {
		tooMany[i] = "https://cdn.test/uploads/a.png"
	}

	for name, in := range map[string]models.NewMessage{
		"content too long":     {Content: strings.Repeat("x", 4001)},
		"too many attachments": {Attachments: tooMany},
		"script attachment":    {Attachments: []string{"javascript:alert(1)"}},
		"relative attachment":  {Content: "see", Attachments: []string{"/uploads/a.png"}},
		"non http attachment":  {Attachments: []string{"ftp://cdn.test/a.png"}},
	} {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			// Neither the directory nor the store is touched
			f := newDispatcherFixture(t)
			in.SenderID, in.ReceiverID = f.alice, f.bob

			_, err := f.dispatcher.Send(context.Background(), in)

			req.ErrorIs(err, ErrValidation)
		})
	}
}

func Test_Send_Drops_Blank_Attachments_Before_Checking_Them(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in models.NewMessage) (*models.Message, error) {
			return persisted(in), nil
		}).Times(1)

	receipt, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID:    f.alice,
		ReceiverID:  f.bob,
		Attachments: []string{"", "  https://cdn.test/uploads/a.png ", " "},
		IsAnonymous: true,
	})

	req.NoError(err)
	req.Equal([]string{"https://cdn.test/uploads/a.png"}, receipt.Message.Attachments)
}

func Test_Send_Accepts_Content_At_The_Limit(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in models.NewMessage) (*models.Message, error) {
			return persisted(in), nil
		}).Times(1)

	_, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: strings.Repeat("é", 4000),
	})

	req.NoError(err)
}

func Test_Send_Unknown_Recipient(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(nil, repository.ErrNotFound).Times(1)

	_, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "hello",
	})

	req.ErrorIs(err, ErrRecipientNotFound)
}

func Test_Send_Directory_Failure_Is_Store_Error(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(nil, errors.New("conn reset")).Times(1)

	_, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "hello",
	})

	req.ErrorIs(err, ErrStore)
	req.NotErrorIs(err, ErrRecipientNotFound)
}

func Test_Send_Store_Failure_Never_Reaches_Recipient(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bobConn := newFakeHandle(f.bob)
	f.registry.Register(f.bob, bobConn)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full")).Times(1)

	_, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "hello",
	})

	req.ErrorIs(err, ErrStore)
	req.Empty(bobConn.Events(types.EventDeliver))
}

func Test_Send_Offline_Recipient_Is_Unreachable(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in models.NewMessage) (*models.Message, error) {
			return persisted(in), nil
		}).Times(1)

	receipt, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "  hello  ", IsAnonymous: true,
	})

	req.NoError(err)
	req.Equal(types.DeliveryUnreachable, receipt.Delivery)
	req.Equal("hello", receipt.Message.Content)
}

func Test_Send_Online_Recipient_Gets_Exactly_One_Anonymous_Deliver(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bobConn := newFakeHandle(f.bob)
	f.registry.Register(f.bob, bobConn)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in models.NewMessage) (*models.Message, error) {
			return persisted(in), nil
		}).Times(1)

	receipt, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "hi", IsAnonymous: true,
	})

	req.NoError(err)
	req.Equal(types.DeliveryPushed, receipt.Delivery)
	delivered := bobConn.Events(types.EventDeliver)
	req.Len(delivered, 1)
	payload := delivered[0].Data.(types.DeliverPayload)
	req.Equal(receipt.Message.ID, payload.Message.ID)
	req.True(payload.Message.IsAnonymous)
	req.Nil(payload.Sender)
}

func Test_Send_Named_Message_Carries_Sender(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bobConn := newFakeHandle(f.bob)
	f.registry.Register(f.bob, bobConn)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.alice).Return(&models.User{ID: f.alice, Name: "alice"}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in models.NewMessage) (*models.Message, error) {
			return persisted(in), nil
		}).Times(1)

	_, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Attachments: []string{"http://cdn/a.png"}, IsAnonymous: false,
	})

	req.NoError(err)
	delivered := bobConn.Events(types.EventDeliver)
	req.Len(delivered, 1)
	payload := delivered[0].Data.(types.DeliverPayload)
	req.NotNil(payload.Sender)
	req.Equal("alice", payload.Sender.Name)
}

func Test_Send_Push_Failure_Is_Unreachable(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	bobConn := newFakeHandle(f.bob)
	bobConn.err = ErrSlowConsumer
	f.registry.Register(f.bob, bobConn)
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).Return(&models.User{ID: f.bob}, nil).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in models.NewMessage) (*models.Message, error) {
			return persisted(in), nil
		}).Times(1)

	receipt, err := f.dispatcher.Send(context.Background(), models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "hi", IsAnonymous: true,
	})

	req.NoError(err)
	req.Equal(types.DeliveryUnreachable, receipt.Delivery)
}

func Test_Send_Persists_Even_When_Sender_Context_Is_Cancelled(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	// Given the sender disconnects right after the recipient is resolved
	f.users.EXPECT().GetUserByID(gomock.Any(), f.bob).
		DoAndReturn(func(context.Context, uuid.UUID) (*models.User, error) {
			cancel()
			return &models.User{ID: f.bob}, nil
		}).Times(1)
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, in models.NewMessage) (*models.Message, error) {
			// Then the write still sees a live context
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return persisted(in), nil
		}).Times(1)

	receipt, err := f.dispatcher.Send(ctx, models.NewMessage{
		SenderID: f.alice, ReceiverID: f.bob, Content: "hi", IsAnonymous: true,
	})

	req.NoError(err)
	req.NotNil(receipt.Message)
}
