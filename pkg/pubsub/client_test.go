package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/beadshop-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/shop/topics/orders", topicResourceName("shop", "orders"))
	assert.Equal(t, "projects/other/topics/x", topicResourceName("shop", "projects/other/topics/x"))
	assert.Empty(t, topicResourceName("", "orders"))
	assert.Empty(t, topicResourceName("shop", "  "))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: " orders ", ShipmentsTopic: ""})
	assert.Equal(t, []string{"orders"}, names)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.NoError(t, c.Close())
}

func TestSubscriptionResourceName(t *testing.T) {
	assert.Equal(t, "projects/shop/subscriptions/notifier", subscriptionResourceName("shop", "notifier"))
	assert.Equal(t, "projects/other/subscriptions/x", subscriptionResourceName("shop", "projects/other/subscriptions/x"))
	assert.Empty(t, subscriptionResourceName("", "notifier"))

	var c *Client
	assert.Nil(t, c.Subscriber("notifier"))
}
