package kafka

import (
	"Murmur/internal/api/dto"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func producerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Producer.Return.Successes = true
	return c
}

func TestOfflinePushProducer_SendsMetadataOnly(t *testing.T) {
	mock := mocks.NewSyncProducer(t, producerConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var push dto.OfflinePush
		if err := json.Unmarshal(val, &push); err != nil {
			return err
		}
		if push.ReceiverID != 2 || push.MessageID != "m1" {
			return errors.New("unexpected push payload")
		}
		return nil
	})

	p := NewOfflinePushProducerWith(mock, "offline")
	err := p.NotifyOffline(context.Background(), &dto.OfflinePush{
		ReceiverID: 2,
		SenderID:   1,
		ThreadID:   "t1",
		MessageID:  "m1",
		Kind:       "text",
		CreatedAt:  time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestOfflinePushProducer_WrapsSendError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, producerConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewOfflinePushProducerWith(mock, "offline")
	err := p.NotifyOffline(context.Background(), &dto.OfflinePush{ReceiverID: 2})

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
