package events

import (
	"context"
	"encoding/json"
	"testing"

	"hardware_ledger/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testKafkaConfig() KafkaConfig {
	return KafkaConfig{TopicInventory: "hw.inventory", TopicLoans: "hw.loans"}
}

func TestKafkaPublisher_RoutesLoanEventsToLoanTopic(t *testing.T) {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)

	var got *sarama.ProducerMessage
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		got = msg
		return nil
	})

	p := newKafkaPublisher(producer, testKafkaConfig(), zap.NewNop())
	code := "RPI"
	loan := &models.Loan{ID: "loan-1", ItemID: "item-1", StudentID: "S1",
		Item: &models.Item{ID: "item-1", Code: &code, AvailableCount: 4}}

	require.NoError(t, p.Publish(context.Background(), ForLoan(LoanIssued, loan)))
	require.NotNil(t, got)
	assert.Equal(t, "hw.loans", got.Topic)

	key, err := got.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "item-1", string(key))

	raw, err := got.Value.Encode()
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, LoanIssued, e.Type)
	assert.Equal(t, "RPI", e.ItemCode)
	assert.Equal(t, 4, e.AvailableCount)

	require.NoError(t, p.Close())
}

func TestKafkaPublisher_RoutesInventoryEvents(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	var topic string
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		topic = msg.Topic
		return nil
	})

	p := newKafkaPublisher(producer, testKafkaConfig(), zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), ForItem(ItemCreated, &models.Item{ID: "item-2"})))
	assert.Equal(t, "hw.inventory", topic)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(producer, testKafkaConfig(), zap.NewNop())
	err := p.Publish(context.Background(), ForItem(ItemDeleted, &models.Item{ID: "item-3"}))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
