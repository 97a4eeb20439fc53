package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("Glow2MQTT")
	assert.NoError(err)
	assert.Equal("glow2mqtt", topic)

	_, err = CheckMQTTTopic("glow/2/mqtt")
	assert.Error(err)

	_, err = CheckMQTTTopic("")
	assert.Error(err)
}
